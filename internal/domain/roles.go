package domain

// UserRoleType is an application role carried in access tokens
type UserRoleType string

const (
	RoleInvoiceAdmin  UserRoleType = "invoice_admin"
	RoleInvoiceEditor UserRoleType = "invoice_editor"
	RoleInvoiceViewer UserRoleType = "invoice_viewer"
	RoleAPIService    UserRoleType = "api_service"
)

// PermissionType names one guarded capability
type PermissionType string

const (
	PermissionInvoicesRead  PermissionType = "invoices:read"
	PermissionInvoicesWrite PermissionType = "invoices:write"
	PermissionBrandingWrite PermissionType = "branding:write"
)

// RolePermissions lists the default permissions of each role
var RolePermissions = map[UserRoleType][]PermissionType{
	RoleInvoiceAdmin:  {PermissionInvoicesRead, PermissionInvoicesWrite, PermissionBrandingWrite},
	RoleInvoiceEditor: {PermissionInvoicesRead, PermissionInvoicesWrite},
	RoleInvoiceViewer: {PermissionInvoicesRead},
	RoleAPIService:    {PermissionInvoicesRead, PermissionInvoicesWrite, PermissionBrandingWrite},
}
