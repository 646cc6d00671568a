package services

const (
	errShapeValidationFailed = "SHAPE_VALIDATION_FAILED"
	errPolicyLoadFailed      = "POLICY_LOAD_FAILED"
	errValidatorUnavailable  = "VALIDATOR_UNAVAILABLE"
	errPipelineViolation     = "PIPELINE_VIOLATION"
	errProposalStateInvalid  = "PROPOSAL_STATE_INVALID"
	errProposalNotFound      = "PROPOSAL_NOT_FOUND"
)
