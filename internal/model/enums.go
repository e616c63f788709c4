package model

import (
	"strings"

	"github.com/randalmurphal/tpm/internal/errors"
)

// EntityKind names a kind of tracked entity.
type EntityKind string

const (
	KindOrg     EntityKind = "org"
	KindProject EntityKind = "project"
	KindTicket  EntityKind = "ticket"
	KindTask    EntityKind = "task"
	KindNote    EntityKind = "note"
)

// IDPrefix returns the prefix used for ids of this kind.
func (k EntityKind) IDPrefix() string {
	switch k {
	case KindOrg:
		return "ORG"
	case KindProject:
		return "PROJ"
	case KindTicket:
		return "TICK"
	case KindTask:
		return "TASK"
	case KindNote:
		return "NOTE"
	default:
		return strings.ToUpper(string(k))
	}
}

// IsNoteTarget reports whether notes may be attached to this kind.
func (k EntityKind) IsNoteTarget() bool {
	switch k {
	case KindOrg, KindProject, KindTicket, KindTask:
		return true
	}
	return false
}

// NoteTargetKinds lists the kinds notes can attach to.
func NoteTargetKinds() []string {
	return []string{string(KindOrg), string(KindProject), string(KindTicket), string(KindTask)}
}

// ParseNoteTargetKind validates s as a note target kind.
func ParseNoteTargetKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsNoteTarget() {
		return "", errors.InvalidEnum("note", "entity_type", s, NoteTargetKinds())
	}
	return k, nil
}

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketBacklog    TicketStatus = "backlog"
	TicketPlanned    TicketStatus = "planned"
	TicketInProgress TicketStatus = "in-progress"
	TicketDone       TicketStatus = "done"
	TicketBlocked    TicketStatus = "blocked"
)

// TicketStatusValues lists the legal ticket statuses.
func TicketStatusValues() []string {
	return []string{"backlog", "planned", "in-progress", "done", "blocked"}
}

// Valid reports whether s is a legal ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketBacklog, TicketPlanned, TicketInProgress, TicketDone, TicketBlocked:
		return true
	}
	return false
}

// ParseTicketStatus validates s as a ticket status.
func ParseTicketStatus(s string) (TicketStatus, error) {
	st := TicketStatus(s)
	if !st.Valid() {
		return "", errors.InvalidEnum("ticket", "status", s, TicketStatusValues())
	}
	return st, nil
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskDone       TaskStatus = "done"
	TaskBlocked    TaskStatus = "blocked"
)

// TaskStatusValues lists the legal task statuses.
func TaskStatusValues() []string {
	return []string{"pending", "in-progress", "done", "blocked"}
}

// Valid reports whether s is a legal task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskDone, TaskBlocked:
		return true
	}
	return false
}

// ParseTaskStatus validates s as a task status.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(s)
	if !st.Valid() {
		return "", errors.InvalidEnum("task", "status", s, TaskStatusValues())
	}
	return st, nil
}

// Priority ranks tickets and tasks.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// PriorityValues lists the legal priorities, highest first.
func PriorityValues() []string {
	return []string{"critical", "high", "medium", "low"}
}

// Valid reports whether p is a legal priority.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Rank orders priorities; higher is more urgent. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ParsePriority validates s as a priority for the given kind.
func ParsePriority(kind, s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", errors.InvalidEnum(kind, "priority", s, PriorityValues())
	}
	return p, nil
}

// Complexity estimates the size of a task.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// ComplexityValues lists the legal complexities.
func ComplexityValues() []string {
	return []string{"simple", "medium", "complex"}
}

// Valid reports whether c is a legal complexity.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexitySimple, ComplexityMedium, ComplexityComplex:
		return true
	}
	return false
}

// ParseComplexity validates s as a task complexity.
func ParseComplexity(s string) (Complexity, error) {
	c := Complexity(s)
	if !c.Valid() {
		return "", errors.InvalidEnum("task", "complexity", s, ComplexityValues())
	}
	return c, nil
}
