// Package access holds the authorization predicates for lists and tasks.
// They are pure functions over already-loaded state and are the single source
// of truth for every mutation service; no caller re-derives these rules.
package access

// ListACL is the slice of list state the predicates need: its owner and the
// set of accepted collaborators. Pending members grant nothing.
type ListACL struct {
	OwnerID       string
	Collaborators []string
}

// IsCollaborator reports whether userID is an accepted collaborator.
func (acl ListACL) IsCollaborator(userID string) bool {
	for _, id := range acl.Collaborators {
		if id == userID {
			return true
		}
	}
	return false
}

// CanAccessList reports whether actor may read or contribute to the list.
func CanAccessList(actorID string, acl ListACL) bool {
	return actorID == acl.OwnerID || acl.IsCollaborator(actorID)
}

// CanMutateTask reports whether actor may update or delete the task: only the
// list owner or the task's creator may.
func CanMutateTask(actorID string, acl ListACL, taskCreatorID string) bool {
	return actorID == acl.OwnerID || actorID == taskCreatorID
}

// CanCompleteTask reports whether actor may toggle completion: anyone when the
// task is unassigned, otherwise only the assignee.
func CanCompleteTask(actorID string, assignedTo string) bool {
	return assignedTo == "" || assignedTo == actorID
}

// CanManageCollaborators reports whether actor may add, kick, approve or
// reject collaborators: only the owner may.
func CanManageCollaborators(actorID string, acl ListACL) bool {
	return actorID == acl.OwnerID
}
