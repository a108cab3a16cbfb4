package shared

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signature auth headers. The signer proves control of an address by signing
// keccak256 of the request body with the standard personal-message prefix.
const (
	HeaderSigner    = "X-Vaultgate-Signer"
	HeaderSignature = "X-Vaultgate-Signature"
)

const maxSignedBody = 1 << 20

// PrincipalMiddleware recovers the caller address from the request signature
// and stores it on the context. Requests without signature headers pass
// through unauthenticated; privilege checks happen in the services.
func PrincipalMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signer := r.Header.Get(HeaderSigner)
			sigHex := r.Header.Get(HeaderSignature)
			if signer == "" || sigHex == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !common.IsHexAddress(signer) {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))

			sig := common.FromHex(sigHex)
			recovered, err := RecoverPersonalSigner(body, sig)
			if err != nil || recovered != common.HexToAddress(signer) {
				logger.Warn("signature auth failed", slog.String("signer", signer))
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			ctx := ContextWithPrincipal(r.Context(), Principal{Address: recovered})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RecoverPersonalSigner recovers the address that produced sig over the
// prefixed keccak digest of payload.
func RecoverPersonalSigner(payload, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, Intent("shared: malformed signature")
	}
	// Normalise the recovery id: wallets emit 27/28.
	v := sig[crypto.RecoveryIDOffset]
	if v >= 27 {
		sig = bytes.Clone(sig)
		sig[crypto.RecoveryIDOffset] = v - 27
	}
	digest := PersonalDigest(payload)
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, Intent("shared: unrecoverable signature")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// PersonalDigest hashes payload with the eth personal-message prefix.
func PersonalDigest(payload []byte) common.Hash {
	return crypto.Keccak256Hash(
		[]byte("\x19Ethereum Signed Message:\n"),
		[]byte(strconv.Itoa(len(payload))),
		payload,
	)
}
