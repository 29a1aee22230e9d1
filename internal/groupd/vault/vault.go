// Package vault manages the server's long-lived PGP keypair: generated on
// first start, stored armored on disk with the secret half locked by a
// passphrase, and loaded (unlocked) on every subsequent start.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProtonMail/gopenpgp/v2/crypto"

	"github.com/nymstr/nymstr-groupd/internal/common"
	"github.com/nymstr/nymstr-groupd/internal/filex"
	"github.com/nymstr/nymstr-groupd/internal/groupd/pgp"
)

const (
	publicFileName = "server.pub.asc"
	secretFileName = "server.sec.asc.enc"
)

// ServerKeys is the unlocked server identity: the armored public half for
// clients, and a signer over the private half for replies. Read-only after
// startup.
type ServerKeys struct {
	PublicArmored string
	Signer        *pgp.Signer

	fingerprint string
}

// Fingerprint identifies the keypair in logs.
func (k *ServerKeys) Fingerprint() string {
	return k.fingerprint
}

// LoadOrInit loads the keypair from keysDir, generating a fresh one if none
// exists yet. clientID becomes the key's user id. A wrong passphrase or a
// corrupt secret blob yields common.ErrVaultLocked; an existing keypair is
// never overwritten.
func LoadOrInit(keysDir, clientID string, passphrase []byte) (*ServerKeys, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("vault passphrase is empty")
	}
	if err := filex.EnsureDir(keysDir); err != nil {
		return nil, err
	}

	pubPath := filepath.Join(keysDir, publicFileName)
	secPath := filepath.Join(keysDir, secretFileName)

	pubExists := fileExists(pubPath)
	secExists := fileExists(secPath)

	switch {
	case pubExists && secExists:
		return load(pubPath, secPath, passphrase)
	case !pubExists && !secExists:
		return generate(pubPath, secPath, clientID, passphrase)
	default:
		return nil, fmt.Errorf("key vault incomplete: exactly one of %s, %s exists", pubPath, secPath)
	}
}

func load(pubPath, secPath string, passphrase []byte) (*ServerKeys, error) {
	pubArmored, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pubPath, err)
	}

	secArmored, err := os.ReadFile(secPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", secPath, err)
	}

	locked, err := crypto.NewKeyFromArmored(string(secArmored))
	if err != nil {
		return nil, fmt.Errorf("%w: parse secret key: %v", common.ErrVaultLocked, err)
	}

	key, err := locked.Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: unlock secret key: %v", common.ErrVaultLocked, err)
	}

	return newServerKeys(key, string(pubArmored))
}

func generate(pubPath, secPath, clientID string, passphrase []byte) (*ServerKeys, error) {
	key, err := crypto.GenerateKey(clientID, clientID+"@nymstr", "x25519", 0)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	pubArmored, err := key.GetArmoredPublicKey()
	if err != nil {
		return nil, fmt.Errorf("armor public key: %w", err)
	}

	locked, err := key.Lock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("lock secret key: %w", err)
	}
	secArmored, err := locked.Armor()
	if err != nil {
		return nil, fmt.Errorf("armor secret key: %w", err)
	}

	// Secret first: a crash in between leaves a loadable-on-retry state
	// only once both files exist, and the incomplete-vault check catches
	// the rest.
	if err := filex.WriteFileAtomic(secPath, []byte(secArmored), 0o600); err != nil {
		return nil, err
	}
	if err := filex.WriteFileAtomic(pubPath, []byte(pubArmored), 0o644); err != nil {
		return nil, err
	}

	return newServerKeys(key, pubArmored)
}

func newServerKeys(key *crypto.Key, pubArmored string) (*ServerKeys, error) {
	signer, err := pgp.NewSigner(key)
	if err != nil {
		return nil, err
	}
	return &ServerKeys{
		PublicArmored: pubArmored,
		Signer:        signer,
		fingerprint:   key.GetFingerprint(),
	}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
