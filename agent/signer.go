package agent

import (
	"fmt"

	enc "github.com/named-data/ndnd/std/encoding"
	"github.com/named-data/ndnd/std/ndn"
	sec_pib "github.com/named-data/ndnd/std/security/pib"
)

// LoadSigner opens the file-backed TPM and SQLite PIB at the given paths and
// returns a signer for the identity matching ownPrefix. The keystore itself
// is treated as opaque: this is the only place that reaches into it.
func LoadSigner(pibPath, tpmPath string, ownPrefix enc.Name) (ndn.Signer, error) {
	tpm := sec_pib.NewFileTpm(tpmPath)
	pib := sec_pib.NewSqlitePib(pibPath, tpm)

	identity := pib.GetIdentity(ownPrefix)
	if identity == nil {
		return nil, fmt.Errorf("no identity found for prefix %s", ownPrefix)
	}
	cert := identity.FindCert(func(_ sec_pib.Cert) bool { return true })
	if cert == nil {
		return nil, fmt.Errorf("no certificate found for identity %s", ownPrefix)
	}
	return cert.AsSigner(), nil
}
