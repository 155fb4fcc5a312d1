package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/PMGEECODE/ArdhiAssets-sub001/auth"
	"github.com/PMGEECODE/ArdhiAssets-sub001/internal/util"
	"github.com/PMGEECODE/ArdhiAssets-sub001/session"
	"github.com/PMGEECODE/ArdhiAssets-sub001/session/boltstore"
)

// buildStore assembles the session manager and auth store from the
// loaded configuration. The returned cleanup closes the durable store,
// when one is configured.
func buildStore() (*auth.Store, *session.Manager, func(), error) {
	opts := []session.Option{}
	cleanup := func() {}

	if cfg.SessionFile != "" {
		secret := []byte(cfg.SessionSecret)
		durable, err := boltstore.Open(cfg.SessionFile, secret)
		util.WipeBytes(secret)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening session store: %w", err)
		}
		opts = append(opts, session.WithDurableStore(durable))
		cleanup = func() { _ = durable.Close() }
	}

	mgr := session.NewManager(session.NewMemoryStore(), opts...)
	store := auth.New(cfg.BaseURL, mgr,
		auth.WithDevice(userAgent(), locale()),
		auth.WithDefaultTimeout(cfg.DefaultTimeoutMinutes),
		auth.WithHTTPTimeout(cfg.HTTPTimeout),
	)
	return store, mgr, cleanup, nil
}

func userAgent() string {
	return fmt.Sprintf("ardhiauth/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}

func locale() string {
	for _, k := range []string{"LC_ALL", "LANG"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return "en"
}
