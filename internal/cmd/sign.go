package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reprobox/internal/bundle"
	"github.com/felixgeelhaar/reprobox/internal/ux"
)

var signCmd = &cobra.Command{
	Use:   "sign <pack>",
	Short: "Sign a pack with an SSH key",
	Long: `Sign the digest of a pack with an OpenSSH private key. The detached
signature is written next to the pack as <pack>.sig.`,
	Example: `  reprobox sign experiment.rpz --key ~/.ssh/id_ed25519`,
	Args:    cobra.ExactArgs(1),
	RunE:    runSign,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <pack>",
	Short: "Verify a pack signature",
	Long: `Verify <pack>.sig against the keys of an authorized_keys file and the
current content of the pack.`,
	Example: `  reprobox verify experiment.rpz --authorized-keys lab_keys`,
	Args:    cobra.ExactArgs(1),
	RunE:    runVerify,
}

var (
	signKey        string
	verifyKeysFile string
)

func init() {
	signCmd.Flags().StringVar(&signKey, "key", "", "OpenSSH private key (unencrypted)")
	_ = signCmd.MarkFlagRequired("key")
	verifyCmd.Flags().StringVar(&verifyKeysFile, "authorized-keys", "", "file listing trusted public keys")
	_ = verifyCmd.MarkFlagRequired("authorized-keys")

	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
}

// signatureView is what sign and verify print.
type signatureView struct {
	Pack        string    `json:"pack" yaml:"pack"`
	Verified    bool      `json:"verified" yaml:"verified"`
	Fingerprint string    `json:"fingerprint" yaml:"fingerprint"`
	Algorithm   string    `json:"algorithm" yaml:"algorithm"`
	Digest      string    `json:"digest" yaml:"digest"`
	SignedAt    time.Time `json:"signed_at" yaml:"signed_at"`
}

func newSignatureView(pack string, verified bool, sig *bundle.Signature) signatureView {
	return signatureView{
		Pack:        pack,
		Verified:    verified,
		Fingerprint: sig.Fingerprint,
		Algorithm:   sig.Algorithm,
		Digest:      sig.Digest,
		SignedAt:    sig.SignedAt,
	}
}

func (v signatureView) RenderText(s *ux.Styles) string {
	var b strings.Builder
	title := "Pack signed"
	if v.Verified {
		title = "Signature verified"
	}
	b.WriteString(s.Title.Render(title) + "\n")
	b.WriteString(s.Field("Pack", v.Pack))
	b.WriteString(s.Field("Key", v.Fingerprint))
	b.WriteString(s.Field("Digest", v.Digest))
	b.WriteString(s.Field("Signed at", v.SignedAt.Format("2006-01-02 15:04:05 MST")))
	return b.String()
}

func runSign(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	sig, err := bundle.Sign(args[0], signKey)
	if err != nil {
		return err
	}
	cctx.Logger().Info("pack signed", "signature", bundle.SignaturePath(args[0]), "fingerprint", sig.Fingerprint)
	return cctx.Print(cmd.OutOrStdout(), newSignatureView(args[0], false, sig))
}

func runVerify(cmd *cobra.Command, args []string) error {
	cctx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	sig, err := bundle.Verify(args[0], verifyKeysFile)
	if err != nil {
		return err
	}
	return cctx.Print(cmd.OutOrStdout(), newSignatureView(args[0], true, sig))
}
