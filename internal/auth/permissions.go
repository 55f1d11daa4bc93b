package auth

// Platform-wide permission catalog. Keys are shared read-only across
// workspaces; the catalog only grows.
const (
	PermTaskViewAll        = "task.view_all"
	PermTaskMoveOwn        = "task.move_own"
	PermTaskSendToClient   = "task.send_to_client"
	PermTaskReview         = "task.review"
	PermTaskClientDecision = "task.client_decision"
	PermTaskManage         = "task.manage"
	PermRoleManage         = "role.manage"
	PermMemberManage       = "member.manage"
	PermClientManage       = "client.manage"
	PermRequirementManage  = "requirement.manage"
)

// BuiltinPermissions is seeded at startup via PermissionStore.Ensure.
var BuiltinPermissions = []Permission{
	{Key: PermTaskViewAll, Description: "View every work item in the workspace"},
	{Key: PermTaskMoveOwn, Description: "Move work items the holder created or is assigned to"},
	{Key: PermTaskSendToClient, Description: "Send a reviewed work item to the client"},
	{Key: PermTaskReview, Description: "Send a work item back for revision"},
	{Key: PermTaskClientDecision, Description: "Accept or reject a work item sent to the client"},
	{Key: PermTaskManage, Description: "Create, edit and delete work items"},
	{Key: PermRoleManage, Description: "Create and modify workspace roles"},
	{Key: PermMemberManage, Description: "Invite and manage workspace members"},
	{Key: PermClientManage, Description: "Invite and manage workspace clients"},
	{Key: PermRequirementManage, Description: "Create and close client requirements"},
}

// System roles guaranteed per workspace. OWNER carries the full catalog
// and is recomputed when the catalog changes; MEMBER is the fixed
// minimal default for members without an assigned role.
const (
	SystemRoleOwner  = "OWNER"
	SystemRoleMember = "MEMBER"
)

// DefaultMemberPermissions is the MEMBER system role's fixed set.
var DefaultMemberPermissions = []string{PermTaskMoveOwn}

// DisplayRoleOwner and DisplayRoleClient are the fixed display names of
// the non-member kinds.
const (
	DisplayRoleOwner  = "Owner"
	DisplayRoleMember = "Member"
	DisplayRoleClient = "Client"
)
