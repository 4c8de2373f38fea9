package permissions

// Permission strings. Call sites reference these constants rather than raw
// strings; the backend stores the same values as permission slugs.
const (
	PermViewDashboard          = "view-dashboard"
	PermViewCustomers          = "view-customers"
	PermCreateCustomers        = "create-customers"
	PermEditCustomers          = "edit-customers"
	PermDeleteCustomers        = "delete-customers"
	PermExportCustomers        = "export-customers"
	PermSubmitRiskAssessment   = "submit-risk-assessment"
	PermViewRiskAssessments    = "view-risk-assessments"
	PermApproveRiskAssessments = "approve-risk-assessments"
	PermViewRiskCriteria       = "view-risk-criteria"
	PermManageRiskCriteria     = "manage-risk-criteria"
	PermViewReports            = "view-reports"
	PermExportReports          = "export-reports"
	PermViewBranches           = "view-branches"
	PermManageBranches         = "manage-branches"
	PermViewUsers              = "view-users"
	PermManageUsers            = "manage-users"
	PermViewRoles              = "view-roles"
	PermManageRoles            = "manage-roles"
	PermManagePermissions      = "manage-permissions"
	PermViewAuditLogs          = "view-audit-logs"
	PermManageSettings         = "manage-settings"
)

// Role slugs as issued by the backend.
const (
	RoleAdmin      = "admin"
	RoleCompliance = "compliance"
	RoleManager    = "manager"
	RoleUser       = "users"
)

// UI feature names.
const (
	FeatureNavDashboard       = "NAV_DASHBOARD"
	FeatureNavCustomers       = "NAV_CUSTOMERS"
	FeatureNavRiskAssessments = "NAV_RISK_ASSESSMENTS"
	FeatureNavRiskCriteria    = "NAV_RISK_CRITERIA"
	FeatureNavReports         = "NAV_REPORTS"
	FeatureNavBranches        = "NAV_BRANCHES"
	FeatureNavUsers           = "NAV_USERS"
	FeatureNavRoles           = "NAV_ROLES"
	FeatureNavPermissions     = "NAV_PERMISSIONS"
	FeatureNavAuditLogs       = "NAV_AUDIT_LOGS"
	FeatureNavSettings        = "NAV_SETTINGS"
	FeatureCreateCustomer     = "BTN_CREATE_CUSTOMER"
	FeatureEditCustomer       = "BTN_EDIT_CUSTOMER"
	FeatureDeleteCustomer     = "BTN_DELETE_CUSTOMER"
	FeatureExportCustomers    = "BTN_EXPORT_CUSTOMERS"
	FeatureApproveAssessment  = "BTN_APPROVE_ASSESSMENT"
	FeatureEditCriteria       = "BTN_EDIT_CRITERIA"
	FeatureExportReport       = "BTN_EXPORT_REPORT"
	FeatureCreateUser         = "BTN_CREATE_USER"
	FeatureAssignRoles        = "BTN_ASSIGN_ROLES"
	FeatureRiskScoreBreakdown = "SECTION_RISK_SCORE_BREAKDOWN"
)

func defaultDefinition() Definition {
	return Definition{
		Permissions: map[string]string{
			"VIEW_DASHBOARD":           PermViewDashboard,
			"VIEW_CUSTOMERS":           PermViewCustomers,
			"CREATE_CUSTOMERS":         PermCreateCustomers,
			"EDIT_CUSTOMERS":           PermEditCustomers,
			"DELETE_CUSTOMERS":         PermDeleteCustomers,
			"EXPORT_CUSTOMERS":         PermExportCustomers,
			"SUBMIT_RISK_ASSESSMENT":   PermSubmitRiskAssessment,
			"VIEW_RISK_ASSESSMENTS":    PermViewRiskAssessments,
			"APPROVE_RISK_ASSESSMENTS": PermApproveRiskAssessments,
			"VIEW_RISK_CRITERIA":       PermViewRiskCriteria,
			"MANAGE_RISK_CRITERIA":     PermManageRiskCriteria,
			"VIEW_REPORTS":             PermViewReports,
			"EXPORT_REPORTS":           PermExportReports,
			"VIEW_BRANCHES":            PermViewBranches,
			"MANAGE_BRANCHES":          PermManageBranches,
			"VIEW_USERS":               PermViewUsers,
			"MANAGE_USERS":             PermManageUsers,
			"VIEW_ROLES":               PermViewRoles,
			"MANAGE_ROLES":             PermManageRoles,
			"MANAGE_PERMISSIONS":       PermManagePermissions,
			"VIEW_AUDIT_LOGS":          PermViewAuditLogs,
			"MANAGE_SETTINGS":          PermManageSettings,
		},
		RolePermissions: map[string][]string{
			RoleAdmin: {
				PermViewDashboard,
				PermViewCustomers,
				PermCreateCustomers,
				PermEditCustomers,
				PermDeleteCustomers,
				PermExportCustomers,
				PermViewRiskAssessments,
				PermApproveRiskAssessments,
				PermViewRiskCriteria,
				PermManageRiskCriteria,
				PermViewReports,
				PermExportReports,
				PermViewBranches,
				PermManageBranches,
				PermViewUsers,
				PermManageUsers,
				PermViewRoles,
				PermManageRoles,
				PermManagePermissions,
				PermViewAuditLogs,
				PermManageSettings,
			},
			RoleCompliance: {
				PermViewDashboard,
				PermViewCustomers,
				PermExportCustomers,
				PermViewRiskAssessments,
				PermApproveRiskAssessments,
				PermViewRiskCriteria,
				PermManageRiskCriteria,
				PermViewReports,
				PermExportReports,
				PermViewBranches,
				PermViewAuditLogs,
			},
			RoleManager: {
				PermViewDashboard,
				PermViewCustomers,
				PermEditCustomers,
				PermExportCustomers,
				PermViewRiskAssessments,
				PermApproveRiskAssessments,
				PermViewReports,
				PermExportReports,
				PermViewBranches,
				PermViewUsers,
			},
			RoleUser: {
				PermViewDashboard,
				PermViewCustomers,
				PermCreateCustomers,
				PermSubmitRiskAssessment,
			},
		},
		UIPermissions: map[string][]string{
			FeatureNavDashboard:       {PermViewDashboard},
			FeatureNavCustomers:       {PermViewCustomers},
			FeatureNavRiskAssessments: {PermViewRiskAssessments},
			FeatureNavRiskCriteria:    {PermViewRiskCriteria, PermManageRiskCriteria},
			FeatureNavReports:         {PermViewReports},
			FeatureNavBranches:        {PermViewBranches, PermManageBranches},
			FeatureNavUsers:           {PermViewUsers, PermManageUsers},
			FeatureNavRoles:           {PermViewRoles, PermManageRoles},
			FeatureNavPermissions:     {PermManagePermissions},
			FeatureNavAuditLogs:       {PermViewAuditLogs},
			FeatureNavSettings:        {PermManageSettings},
			FeatureCreateCustomer:     {PermCreateCustomers},
			FeatureEditCustomer:       {PermEditCustomers},
			FeatureDeleteCustomer:     {PermDeleteCustomers},
			FeatureExportCustomers:    {PermExportCustomers},
			FeatureApproveAssessment:  {PermApproveRiskAssessments},
			FeatureEditCriteria:       {PermManageRiskCriteria},
			FeatureExportReport:       {PermExportReports},
			FeatureCreateUser:         {PermManageUsers},
			FeatureAssignRoles:        {PermManageRoles},
			FeatureRiskScoreBreakdown: {PermViewRiskAssessments, PermApproveRiskAssessments},
		},
		RoutePermissions: map[string][]string{
			"/dashboard":        {PermViewDashboard},
			"/customers":        {PermViewCustomers},
			"/customers/create": {PermCreateCustomers},
			"/risk-assessments": {PermViewRiskAssessments},
			"/risk-criteria":    {PermViewRiskCriteria, PermManageRiskCriteria},
			"/reports":          {PermViewReports},
			"/branches":         {PermViewBranches, PermManageBranches},
			"/users":            {PermViewUsers, PermManageUsers},
			"/roles":            {PermViewRoles, PermManageRoles},
			"/permissions":      {PermManagePermissions},
			"/audit-logs":       {PermViewAuditLogs},
			"/settings":         {PermManageSettings},
		},
		RoleExclusiveRoutes: []RouteRule{
			{Route: "/risk-form", Roles: []string{RoleUser}},
			{Route: "/my-submissions", Roles: []string{RoleUser}},
			{Route: "/customers/*/risk-form", Roles: []string{RoleUser}},
			{Route: "/customers/*/edit", Roles: []string{RoleUser, RoleManager}},
			{Route: "/risk-assessments/*/review", Roles: []string{RoleCompliance, RoleManager}},
		},
	}
}
