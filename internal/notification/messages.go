package notification

import (
	"context"
	"fmt"

	"github.com/mprlab/colist/internal/model"
)

// Typed constructors for every domain event that produces a notification.
// Titles and messages are part of the client contract.

// TodoListDeleted fans out one record per collaborator before the list record
// is removed; the caller must pass the collaborator ids while they are still
// known.
func (e *Engine) TodoListDeleted(ctx context.Context, collaboratorIDs []string, listName, ownerName string) ([]model.Notification, error) {
	inputs := make([]Input, 0, len(collaboratorIDs))
	for _, collaboratorID := range collaboratorIDs {
		inputs = append(inputs, Input{
			UserID:   collaboratorID,
			Type:     model.NotificationTodoListDeleted,
			Title:    "Todo List Deleted",
			Message:  fmt.Sprintf("%q has been deleted by %s", listName, ownerName),
			Priority: model.NotificationPriorityMedium,
			Data: model.NotificationData{
				Metadata: map[string]any{"list_name": listName},
			},
		})
	}
	return e.NotifyBulk(ctx, inputs)
}

// CollaboratorAdded notifies the new collaborator.
func (e *Engine) CollaboratorAdded(ctx context.Context, collaboratorID, listID, listName, addedByID, addedByName string) (model.Notification, error) {
	return e.Notify(ctx, Input{
		UserID:   collaboratorID,
		Type:     model.NotificationCollaboratorAdded,
		Title:    "Added to Todo List",
		Message:  fmt.Sprintf("You have been added to %q by %s", listName, addedByName),
		Priority: model.NotificationPriorityMedium,
		Data: model.NotificationData{
			ListID:     listID,
			FromUserID: addedByID,
			Metadata:   map[string]any{"list_name": listName},
		},
	})
}

// CollaboratorKicked notifies the removed collaborator.
func (e *Engine) CollaboratorKicked(ctx context.Context, collaboratorID, listName, kickedByID, kickedByName string) (model.Notification, error) {
	return e.Notify(ctx, Input{
		UserID:   collaboratorID,
		Type:     model.NotificationCollaboratorKicked,
		Title:    "Kicked from Todo List",
		Message:  fmt.Sprintf("You have been kicked from %q by %s", listName, kickedByName),
		Priority: model.NotificationPriorityHigh,
		Data: model.NotificationData{
			FromUserID: kickedByID,
			Metadata:   map[string]any{"list_name": listName},
		},
	})
}

// CollaboratorLeft notifies the owner that a collaborator left.
func (e *Engine) CollaboratorLeft(ctx context.Context, ownerID, collaboratorID, collaboratorName, listName string) (model.Notification, error) {
	return e.Notify(ctx, Input{
		UserID:   ownerID,
		Type:     model.NotificationCollaboratorLeft,
		Title:    "Collaborator Left",
		Message:  fmt.Sprintf("%s has left %q", collaboratorName, listName),
		Priority: model.NotificationPriorityLow,
		Data: model.NotificationData{
			FromUserID: collaboratorID,
			Metadata:   map[string]any{"list_name": listName},
		},
	})
}

// RequestToJoin notifies the owner that someone asked to join.
func (e *Engine) RequestToJoin(ctx context.Context, ownerID, requesterID, requesterName, listID, listName string) (model.Notification, error) {
	return e.Notify(ctx, Input{
		UserID:   ownerID,
		Type:     model.NotificationRequestToJoin,
		Title:    "Join Request",
		Message:  fmt.Sprintf("%s wants to join %q", requesterName, listName),
		Priority: model.NotificationPriorityMedium,
		Data: model.NotificationData{
			ListID:     listID,
			FromUserID: requesterID,
			Metadata:   map[string]any{"list_name": listName},
		},
	})
}

// JoinRequestSent confirms to the requester that their request is pending.
func (e *Engine) JoinRequestSent(ctx context.Context, requesterID, listID, listName string) (model.Notification, error) {
	return e.Notify(ctx, Input{
		UserID:   requesterID,
		Type:     model.NotificationJoinRequestSent,
		Title:    "Join Request Sent",
		Message:  fmt.Sprintf("Your request to join %q is awaiting approval", listName),
		Priority: model.NotificationPriorityLow,
		Data: model.NotificationData{
			ListID:   listID,
			Metadata: map[string]any{"list_name": listName},
		},
	})
}

// JoinRequestAccepted notifies the requester their request was approved.
func (e *Engine) JoinRequestAccepted(ctx context.Context, requesterID, listID, listName, ownerID string) (model.Notification, error) {
	return e.Notify(ctx, Input{
		UserID:   requesterID,
		Type:     model.NotificationJoinRequestAccepted,
		Title:    "Join Request Accepted",
		Message:  fmt.Sprintf("You have joined %q", listName),
		Priority: model.NotificationPriorityMedium,
		Data: model.NotificationData{
			ListID:     listID,
			FromUserID: ownerID,
			Metadata:   map[string]any{"list_name": listName},
		},
	})
}

// JoinRequestRejected notifies the requester their request was declined.
func (e *Engine) JoinRequestRejected(ctx context.Context, requesterID, listName, ownerID string) (model.Notification, error) {
	return e.Notify(ctx, Input{
		UserID:   requesterID,
		Type:     model.NotificationJoinRequestRejected,
		Title:    "Join Request Rejected",
		Message:  fmt.Sprintf("Your request to join %q was rejected", listName),
		Priority: model.NotificationPriorityLow,
		Data: model.NotificationData{
			FromUserID: ownerID,
			Metadata:   map[string]any{"list_name": listName},
		},
	})
}

// TaskAssigned notifies the assignee.
func (e *Engine) TaskAssigned(ctx context.Context, assigneeID, taskID, taskTitle, listID, listName, assignedByID, assignedByName string) (model.Notification, error) {
	return e.Notify(ctx, Input{
		UserID:   assigneeID,
		Type:     model.NotificationTaskAssigned,
		Title:    "Task Assigned",
		Message:  fmt.Sprintf("You have been assigned to %q in %q by %s", taskTitle, listName, assignedByName),
		Priority: model.NotificationPriorityMedium,
		Data: model.NotificationData{
			ListID:     listID,
			TaskID:     taskID,
			FromUserID: assignedByID,
			Metadata:   map[string]any{"task_title": taskTitle, "list_name": listName},
		},
	})
}

// TaskCompleted notifies a stakeholder other than the completer.
func (e *Engine) TaskCompleted(ctx context.Context, targetID, taskID, taskTitle, listID, listName, completedByID, completedByName string) (model.Notification, error) {
	return e.Notify(ctx, Input{
		UserID:   targetID,
		Type:     model.NotificationTaskCompleted,
		Title:    "Task Completed",
		Message:  fmt.Sprintf("%s completed %q in %q", completedByName, taskTitle, listName),
		Priority: model.NotificationPriorityMedium,
		Data: model.NotificationData{
			ListID:     listID,
			TaskID:     taskID,
			FromUserID: completedByID,
			Metadata:   map[string]any{"task_title": taskTitle, "list_name": listName},
		},
	})
}

// TaskUpdated notifies a stakeholder other than the updater.
func (e *Engine) TaskUpdated(ctx context.Context, targetID, taskID, taskTitle, listID, listName, updatedByID, updatedByName string) (model.Notification, error) {
	return e.Notify(ctx, Input{
		UserID:   targetID,
		Type:     model.NotificationTaskUpdated,
		Title:    "Task Updated",
		Message:  fmt.Sprintf("%s updated %q in %q", updatedByName, taskTitle, listName),
		Priority: model.NotificationPriorityMedium,
		Data: model.NotificationData{
			ListID:     listID,
			TaskID:     taskID,
			FromUserID: updatedByID,
			Metadata:   map[string]any{"task_title": taskTitle, "list_name": listName},
		},
	})
}

// TaskDeleted notifies the assignee that their task was removed.
func (e *Engine) TaskDeleted(ctx context.Context, assigneeID, taskTitle, listName, deletedByID, deletedByName string) (model.Notification, error) {
	return e.Notify(ctx, Input{
		UserID:   assigneeID,
		Type:     model.NotificationTaskDeleted,
		Title:    "Task Deleted",
		Message:  fmt.Sprintf("%s deleted %q in %q", deletedByName, taskTitle, listName),
		Priority: model.NotificationPriorityMedium,
		Data: model.NotificationData{
			FromUserID: deletedByID,
			Metadata:   map[string]any{"task_title": taskTitle, "list_name": listName},
		},
	})
}

// TaskCommented fans out one record per participant, de-duplicated by the
// caller.
func (e *Engine) TaskCommented(ctx context.Context, participantIDs []string, taskID, taskTitle, listID, listName, commenterID, commenterName, comment string) ([]model.Notification, error) {
	inputs := make([]Input, 0, len(participantIDs))
	for _, participantID := range participantIDs {
		inputs = append(inputs, Input{
			UserID:   participantID,
			Type:     model.NotificationCustom,
			Title:    "New Comment on Task",
			Message:  fmt.Sprintf("%s commented on %q in %q", commenterName, taskTitle, listName),
			Priority: model.NotificationPriorityLow,
			Data: model.NotificationData{
				ListID:     listID,
				TaskID:     taskID,
				FromUserID: commenterID,
				Metadata:   map[string]any{"comment": comment},
			},
		})
	}
	return e.NotifyBulk(ctx, inputs)
}
