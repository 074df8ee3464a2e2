package constants

// Capability names expected in the pre-computed actor capability set.
const (
	ViewData           = "view_data"
	ManageCatalog      = "manage_catalog"
	SubmitTransactions = "submit_transactions"
	AuditRecords       = "audit_records"
	ManageOrgSetup     = "manage_org_setup"
)
