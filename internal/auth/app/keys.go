package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pelorus/orgauth/pkg/jwtx"
)

// loadSigningKey returns the Ed25519 signing key in PEM form. With no file
// configured the key is ephemeral: tokens stop verifying across restarts,
// which is fine for dev. A configured path is created on first boot and
// reused afterwards.
func loadSigningKey(cfg Config, logger *slog.Logger) ([]byte, error) {
	if cfg.SigningKeyFile == "" {
		logger.Warn("no signing key file configured, using an ephemeral key")
		return jwtx.GenerateEd25519Key()
	}

	pemKey, err := os.ReadFile(cfg.SigningKeyFile)
	if err == nil {
		return pemKey, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read signing key: %w", err)
	}

	pemKey, err = jwtx.GenerateEd25519Key()
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	if err := os.WriteFile(cfg.SigningKeyFile, pemKey, 0o600); err != nil {
		return nil, fmt.Errorf("persist signing key: %w", err)
	}

	logger.Info("generated new signing key", "path", cfg.SigningKeyFile)
	return pemKey, nil
}
