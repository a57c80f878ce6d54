package access

import "testing"

func TestCanAccessList(t *testing.T) {
	acl := ListACL{OwnerID: "owner-1", Collaborators: []string{"collab-1", "collab-2"}}

	if !CanAccessList("owner-1", acl) {
		t.Fatalf("expected owner to have access")
	}
	if !CanAccessList("collab-2", acl) {
		t.Fatalf("expected collaborator to have access")
	}
	if CanAccessList("stranger", acl) {
		t.Fatalf("expected stranger to be denied")
	}
}

func TestCanMutateTask(t *testing.T) {
	acl := ListACL{OwnerID: "owner-1", Collaborators: []string{"collab-1", "collab-2"}}

	if !CanMutateTask("owner-1", acl, "collab-1") {
		t.Fatalf("expected owner to mutate any task")
	}
	if !CanMutateTask("collab-1", acl, "collab-1") {
		t.Fatalf("expected creator to mutate own task")
	}
	if CanMutateTask("collab-2", acl, "collab-1") {
		t.Fatalf("expected non-creator collaborator to be denied")
	}
}

func TestCanCompleteTask(t *testing.T) {
	if !CanCompleteTask("anyone", "") {
		t.Fatalf("expected unassigned task to be completable by anyone")
	}
	if !CanCompleteTask("user-1", "user-1") {
		t.Fatalf("expected assignee to complete own task")
	}
	if CanCompleteTask("user-2", "user-1") {
		t.Fatalf("expected non-assignee to be denied")
	}
}

func TestCanManageCollaborators(t *testing.T) {
	acl := ListACL{OwnerID: "owner-1", Collaborators: []string{"collab-1"}}

	if !CanManageCollaborators("owner-1", acl) {
		t.Fatalf("expected owner to manage collaborators")
	}
	if CanManageCollaborators("collab-1", acl) {
		t.Fatalf("expected collaborator to be denied")
	}
}
