package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

var seedActions = map[string][]string{
	"usuarios":      {"leer", "crear", "actualizar", "eliminar"},
	"roles":         {"leer", "crear", "actualizar", "eliminar"},
	"alertas":       {"leer", "crear", "actualizar", "eliminar", "clasificar"},
	"reportes":      {"leer", "crear", "generar"},
	"auditoria":     {"leer"},
	"configuracion": {"leer", "actualizar"},
}

// seedRoles maps the built-in roles to their permission codes. A nil slice
// means every seeded permission.
var seedRoles = []struct {
	name        string
	description string
	codes       []string
}{
	{"Administrador", "Acceso completo a la administración del sistema", nil},
	{"Analista", "Revisión y clasificación de señales", []string{
		"alertas.leer", "alertas.actualizar", "alertas.clasificar",
		"reportes.leer", "reportes.crear", "reportes.generar",
	}},
	{"Operador", "Operación diaria de señales", []string{
		"alertas.leer", "alertas.crear", "alertas.actualizar",
		"reportes.leer",
	}},
	{"Auditor", "Consulta de auditoría y reportes", []string{
		"auditoria.leer", "reportes.leer",
	}},
}

// Seed ensures the permission catalog and the built-in roles exist.
// Safe to run on every start.
func (s *Service) Seed(ctx context.Context) error {
	var perms []models.Permission
	for resource, actions := range seedActions {
		for _, action := range actions {
			perms = append(perms, models.Permission{
				Code:        fmt.Sprintf("%s.%s", resource, action),
				Resource:    resource,
				Action:      action,
				Description: fmt.Sprintf("Permite %s sobre %s", action, resource),
			})
		}
	}
	if err := s.store.Permissions().Ensure(ctx, perms); err != nil {
		return fmt.Errorf("seeding permissions: %w", err)
	}

	allCodes := make([]string, 0, len(perms))
	for _, p := range perms {
		allCodes = append(allCodes, p.Code)
	}

	for _, seed := range seedRoles {
		role, err := s.store.Roles().ByName(ctx, seed.name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			role = &models.Role{
				Name:        seed.name,
				Description: seed.description,
				Active:      true,
				System:      true,
			}
			if err := s.store.Roles().Create(ctx, role); err != nil {
				return fmt.Errorf("seeding role %s: %w", seed.name, err)
			}
		case err != nil:
			return fmt.Errorf("seeding role %s: %w", seed.name, err)
		default:
			// Existing role keeps its permission set.
			continue
		}

		codes := seed.codes
		if codes == nil {
			codes = allCodes
		}
		if err := s.attachPermissions(ctx, role.ID, codes); err != nil {
			return fmt.Errorf("seeding role %s permissions: %w", seed.name, err)
		}
		s.logger.Info("Seeded role",
			zap.String("role", seed.name),
			zap.Int("permissions", len(codes)))
	}
	return nil
}
