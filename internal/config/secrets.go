package config

import (
	stderrors "errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"starload/pkg/errors"
	"starload/pkg/models"
)

const keyringService = "starload"

// SecretAccount is the keyring account under which a warehouse password is stored
func SecretAccount(w models.Warehouse) string {
	endpoint := w.Host
	if w.Dialect == "snowflake" {
		endpoint = w.Account
	}
	return fmt.Sprintf("%s:%s@%s/%s", w.Dialect, w.User, endpoint, w.Database)
}

// StorePassword saves the warehouse password in the OS keyring
func StorePassword(w models.Warehouse, password string) error {
	if err := keyring.Set(keyringService, SecretAccount(w), password); err != nil {
		return errors.Wrap(err, errors.ErrCodeEncryptionFailed, "failed to store password in keyring")
	}
	return nil
}

// LookupPassword fetches the warehouse password from the OS keyring
func LookupPassword(w models.Warehouse) (string, error) {
	password, err := keyring.Get(keyringService, SecretAccount(w))
	if err != nil {
		if stderrors.Is(err, keyring.ErrNotFound) {
			return "", errors.New(errors.ErrCodeSecretNotFound, "no password stored in keyring").
				WithContext("account", SecretAccount(w)).
				WithSuggestions("Run 'starload secret set'")
		}
		return "", errors.Wrap(err, errors.ErrCodeSecretNotFound, "failed to read keyring")
	}
	return password, nil
}

// DeletePassword removes the warehouse password from the OS keyring
func DeletePassword(w models.Warehouse) error {
	if err := keyring.Delete(keyringService, SecretAccount(w)); err != nil {
		if stderrors.Is(err, keyring.ErrNotFound) {
			return errors.New(errors.ErrCodeSecretNotFound, "no password stored in keyring").
				WithContext("account", SecretAccount(w))
		}
		return errors.Wrap(err, errors.ErrCodeEncryptionFailed, "failed to delete password from keyring")
	}
	return nil
}

// ResolvePassword fills an empty warehouse password from the keyring. A
// missing keyring entry is not an error; sqlite needs no password at all.
func ResolvePassword(cfg *models.Config) error {
	if cfg.Warehouse.Password != "" || cfg.Warehouse.Dialect == "sqlite" {
		return nil
	}
	password, err := LookupPassword(cfg.Warehouse)
	if err != nil {
		if errors.GetErrorCode(err) == errors.ErrCodeSecretNotFound {
			return nil
		}
		return err
	}
	cfg.Warehouse.Password = password
	return nil
}
