package models

import "time"

// PermissionWildcard is the synthetic permission code returned for superusers.
const PermissionWildcard = "*"

// Role represents a named collection of permissions.
type Role struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"nombre" db:"nombre"`
	Description string    `json:"descripcion" db:"descripcion"`
	Active      bool      `json:"activo" db:"activo"`
	System      bool      `json:"es_sistema" db:"es_sistema"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Permission defines access control for a specific resource and action.
// The code has the form "<resource>.<action>" and is immutable after seeding.
type Permission struct {
	ID          int64     `json:"id" db:"id"`
	Code        string    `json:"codigo" db:"codigo"`
	Resource    string    `json:"recurso" db:"recurso"`
	Action      string    `json:"accion" db:"accion"`
	Description string    `json:"descripcion" db:"descripcion"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// UserRole links users to roles.
type UserRole struct {
	UserID     int64     `json:"user_id" db:"id_usuario"`
	RoleID     int64     `json:"role_id" db:"id_rol"`
	AssignedAt time.Time `json:"assigned_at" db:"asignado_en"`
}

// RolePermission links roles to permissions.
type RolePermission struct {
	RoleID       int64     `json:"role_id" db:"id_rol"`
	PermissionID int64     `json:"permission_id" db:"id_permiso"`
	AssignedAt   time.Time `json:"assigned_at" db:"asignado_en"`
}

// RoleWithPermissions is the admin view of a role and its permission codes.
type RoleWithPermissions struct {
	Role
	PermissionCodes []string `json:"permisos"`
}
