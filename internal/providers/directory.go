package providers

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/models"
	"go.uber.org/zap"
)

// Directory authenticates against an LDAP directory by binding with a
// per-user DN and fetching profile attributes on success.
type Directory struct {
	cfg    config.DirectoryConfig
	logger *zap.Logger
	// dial is swappable in tests.
	dial func(ctx context.Context) (ldapConn, error)
}

// ldapConn is the subset of *ldap.Conn the provider uses.
type ldapConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// NewDirectory creates the directory provider.
func NewDirectory(cfg config.DirectoryConfig, logger *zap.Logger) *Directory {
	d := &Directory{
		cfg:    cfg,
		logger: logger.With(zap.String("provider", "directory")),
	}
	d.dial = d.dialLDAP
	return d
}

// Kind returns the directory authentication kind.
func (*Directory) Kind() models.AuthKind { return models.AuthKindDirectory }

func (d *Directory) dialLDAP(ctx context.Context) (ldapConn, error) {
	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)
	dialer := &net.Dialer{Timeout: d.cfg.Timeout}

	var opts []ldap.DialOpt
	scheme := "ldap"
	if d.cfg.UseTLS {
		scheme = "ldaps"
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{ServerName: d.cfg.Host}))
	}
	opts = append(opts, ldap.DialWithDialer(dialer))

	conn, err := ldap.DialURL(fmt.Sprintf("%s://%s", scheme, addr), opts...)
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(d.cfg.Timeout)
	return conn, nil
}

// Authenticate binds with the user DN and, on success, searches the user's
// entry for profile attributes. Connection failures map onto ErrUnavailable,
// bind rejections onto ErrRejected.
func (d *Directory) Authenticate(ctx context.Context, username, password string) (*models.ExternalProfile, error) {
	if password == "" {
		// An empty password would turn the bind into an anonymous bind.
		return nil, ErrRejected
	}

	conn, err := d.dial(ctx)
	if err != nil {
		d.logger.Warn("Directory unreachable", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	userDN := strings.ReplaceAll(d.cfg.UserDNTemplate, "{username}", ldap.EscapeDN(username))
	if err := conn.Bind(userDN, password); err != nil {
		var ldapErr *ldap.Error
		if errors.As(err, &ldapErr) && ldapErr.ResultCode == ldap.LDAPResultInvalidCredentials {
			d.logger.Info("Directory bind rejected", zap.String("username", username))
			return nil, ErrRejected
		}
		d.logger.Warn("Directory bind failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	profile := &models.ExternalProfile{
		Username:   username,
		ExternalID: userDN,
		Kind:       models.AuthKindDirectory,
	}

	filter := d.cfg.SearchFilter
	if filter == "" {
		filter = "(uid={username})"
	}
	filter = strings.ReplaceAll(filter, "{username}", ldap.EscapeFilter(username))

	req := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		filter,
		[]string{"displayName", "mail", "telephoneNumber", "department", "title", "employeeID"},
		nil,
	)
	result, err := conn.Search(req)
	if err != nil || len(result.Entries) == 0 {
		// Bind succeeded; missing attributes are not a login failure.
		d.logger.Debug("Directory attribute fetch failed", zap.Error(err))
		return profile, nil
	}

	entry := result.Entries[0]
	profile.FullName = entry.GetAttributeValue("displayName")
	profile.Email = entry.GetAttributeValue("mail")
	profile.Phone = entry.GetAttributeValue("telephoneNumber")
	profile.Department = entry.GetAttributeValue("department")
	profile.Title = entry.GetAttributeValue("title")
	profile.EmployeeID = entry.GetAttributeValue("employeeID")
	return profile, nil
}
