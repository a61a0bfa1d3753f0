// Package fanout decides which side effects a task or project mutation
// produces. Everything here is pure and deterministic; enqueueing is the
// caller's job.
package fanout

import "fmt"

// User is the slice of a user the policy needs: identity plus a display
// name for "by you" messages.
type User struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Email != "" {
		return u.Email
	}
	return fmt.Sprintf("user #%d", u.ID)
}

type Project struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	OwnerID int64  `json:"owner_id"`
}

type Task struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	Status   string  `json:"status"`
	Project  Project `json:"project"`
	Assignee *User   `json:"assignee,omitempty"`
}

func (t Task) Subject() Subject {
	return Subject{Type: SubjectTask, ID: t.ID}
}

func (t Task) assigneeID() int64 {
	if t.Assignee == nil {
		return 0
	}
	return t.Assignee.ID
}

// ComputeCreationNotifications covers a task created with an assignee. Self
// assignment produces nothing; otherwise the assignee hears about it and the
// actor gets a confirmation, in that order.
func ComputeCreationNotifications(actor User, task Task, assignee *User) []NotificationEvent {
	if assignee == nil || assignee.ID == 0 || assignee.ID == actor.ID {
		return nil
	}
	return assignmentNotifications(actor, task, *assignee)
}

// ComputeReassignmentNotifications covers an update that changed the
// assignee. The user who was un-assigned is never notified.
func ComputeReassignmentNotifications(actor User, task Task, oldAssignee *User, newAssignee *User) []NotificationEvent {
	if newAssignee == nil || newAssignee.ID == 0 {
		return nil
	}
	if oldAssignee != nil && oldAssignee.ID == newAssignee.ID {
		return nil
	}
	if newAssignee.ID == actor.ID {
		return nil
	}
	return assignmentNotifications(actor, task, *newAssignee)
}

func assignmentNotifications(actor User, task Task, assignee User) []NotificationEvent {
	return []NotificationEvent{
		{
			RecipientUserID: assignee.ID,
			Kind:            KindTaskAssigned,
			Message:         fmt.Sprintf("You've been assigned to task: %s in project %s", task.Title, task.Project.Name),
			Subject:         task.Subject(),
		},
		{
			RecipientUserID: actor.ID,
			Kind:            KindTaskAssignedByYou,
			Message:         fmt.Sprintf("You assigned task '%s' to %s in project '%s'", task.Title, assignee.DisplayName(), task.Project.Name),
			Subject:         task.Subject(),
		},
	}
}

// ComputeCompletionNotifications covers a task moving to completed. Each user
// receives at most one notification, checked in the order assignee, project
// owner, actor. The actor only gets the "by you" confirmation when they are
// neither the assignee nor the owner.
func ComputeCompletionNotifications(actor User, task Task) []NotificationEvent {
	assigneeID := task.assigneeID()
	ownerID := task.Project.OwnerID

	out := make([]NotificationEvent, 0, 3)
	seen := make(map[int64]struct{}, 3)
	add := func(userID int64, kind NotificationKind, message string) {
		if userID == 0 {
			return
		}
		if _, dup := seen[userID]; dup {
			return
		}
		seen[userID] = struct{}{}
		out = append(out, NotificationEvent{
			RecipientUserID: userID,
			Kind:            kind,
			Message:         message,
			Subject:         task.Subject(),
		})
	}

	if assigneeID != 0 && assigneeID != actor.ID {
		add(assigneeID, KindTaskCompleted,
			fmt.Sprintf("Task '%s' has been marked as completed", task.Title))
	}
	if ownerID != 0 && ownerID != actor.ID && ownerID != assigneeID {
		add(ownerID, KindTaskCompletedProjectOwner,
			fmt.Sprintf("Task '%s' in your project '%s' has been completed.", task.Title, task.Project.Name))
	}
	if actor.ID != assigneeID && actor.ID != ownerID {
		add(actor.ID, KindTaskCompletedByYou,
			fmt.Sprintf("You marked task '%s' as completed in project '%s'", task.Title, task.Project.Name))
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
