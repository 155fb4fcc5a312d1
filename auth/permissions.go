package auth

import (
	"context"
	"log/slog"

	"github.com/PMGEECODE/ArdhiAssets-sub001/permission"
	"github.com/PMGEECODE/ArdhiAssets-sub001/transport"
)

// LoadPermissions fetches the permission map and installs it in state.
// The returned error reports a load failure; state keeps the previous
// map in that case. Because permission checks default to deny, a failed
// load means reduced access, never a crash or widened access.
func (s *Store) LoadPermissions(ctx context.Context) error {
	return s.loadPermissions(ctx, s.currentGeneration())
}

func (s *Store) loadPermissions(ctx context.Context, gen uint64) error {
	perms, err := s.api.Permissions(transport.WithoutRetry(ctx))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return ErrSuperseded
	}
	if err != nil {
		s.permErr = err
		s.logger.Warn("permission load failed, keeping previous map",
			slog.String("error", err.Error()))
		return err
	}
	s.permErr = nil
	s.state.Permissions = perms
	return nil
}

// Permissions returns the current map together with the last load
// error, so callers can tell "empty because denied" from "empty because
// the load failed".
func (s *Store) Permissions() (permission.Map, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Permissions, s.permErr
}
