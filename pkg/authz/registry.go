package authz

const (
	RoleWorkspaceAdmin = "workspace-admin"
	RoleReviewer       = "reviewer"
	RoleContributor    = "contributor"
	RoleAnonymous      = "anonymous"
)

const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionReview = "review"
)

const DomainGlobal = "global"

const (
	ObjectGovernanceChanges   = "governance.changes"
	ObjectGovernanceProposals = "governance.proposals"
	ObjectGovernanceStatus    = "governance.status"
	ObjectGovernanceCaptures  = "governance.captures"
)
