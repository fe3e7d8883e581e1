package shared

// Core platform permissions.
const (
	PermUsuariosVer         = "usuarios.ver"
	PermUsuariosAdministrar = "usuarios.administrar"

	PermRolesVer         = "roles.ver"
	PermRolesAdministrar = "roles.administrar"

	PermPermisosVer     = "permisos.ver"
	PermPermisosAsignar = "permisos.asignar"

	PermBitacoraVer = "bitacora.ver"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsuariosVer,
		PermUsuariosAdministrar,
		PermRolesVer,
		PermRolesAdministrar,
		PermPermisosVer,
		PermPermisosAsignar,
		PermBitacoraVer,
	}
}

// PermissionDef describes a catalog entry shipped with the application.
type PermissionDef struct {
	Code        string
	Name        string
	Description string
	Module      string
	Group       string
}

// DefaultCatalog returns every permission the application knows about.
// Seeds and the catalog sync command upsert these; administrators may
// deactivate entries but codes are never removed.
func DefaultCatalog() []PermissionDef {
	defs := []PermissionDef{
		{PermUsuariosVer, "Ver usuarios", "Consultar el listado de usuarios", "administracion", "usuarios"},
		{PermUsuariosAdministrar, "Administrar usuarios", "Cambiar rol y estado de usuarios", "administracion", "usuarios"},
		{PermRolesVer, "Ver roles", "Consultar roles y sus permisos", "administracion", "roles"},
		{PermRolesAdministrar, "Administrar roles", "Crear, editar y desactivar roles", "administracion", "roles"},
		{PermPermisosVer, "Ver permisos", "Consultar el catálogo y permisos efectivos", "administracion", "permisos"},
		{PermPermisosAsignar, "Asignar permisos", "Otorgar o revocar permisos por usuario", "administracion", "permisos"},
		{PermBitacoraVer, "Ver bitácora", "Consultar la bitácora de auditoría", "administracion", "auditoria"},
	}
	return append(defs, tallerCatalog()...)
}
