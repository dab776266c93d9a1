package main

import (
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"cvp-knife/internal/cvp"
	"cvp-knife/internal/problem"
	"cvp-knife/internal/recovery"
)

// signatureFile lists signatures from one key, z/r/s in decimal or 0x hex
type signatureFile struct {
	NonceBits  int `yaml:"nonce_bits"`
	Signatures []struct {
		Z problem.Integer `yaml:"z"`
		R problem.Integer `yaml:"r"`
		S problem.Integer `yaml:"s"`
	} `yaml:"signatures"`
}

func loadSignatures(path string) (*signatureFile, []recovery.Signature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var f signatureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	sigs := make([]recovery.Signature, 0, len(f.Signatures))
	for i, s := range f.Signatures {
		var sig recovery.Signature
		for _, part := range []struct {
			dst **big.Int
			src problem.Integer
		}{{&sig.Z, s.Z}, {&sig.R, s.R}, {&sig.S, s.S}} {
			v, err := part.src.Big()
			if err != nil {
				return nil, nil, fmt.Errorf("signature %d: %w", i, err)
			}
			*part.dst = v
		}
		sigs = append(sigs, sig)
	}
	return &f, sigs, nil
}

func newRecoverCmd(root *rootOptions) *cobra.Command {
	var bits int
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "recover-nonce FILE",
		Short: "Recover an ECDSA key from signatures with reused or short nonces",
		Long: `Reads signatures (z, r, s) over secp256k1 from FILE.

With --bits 0 the file must hold two signatures sharing a nonce. Otherwise
every nonce is assumed to be below 2^bits and the key is found by solving
the hidden number problem as a closest vector instance.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := root.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			f, sigs, err := loadSignatures(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("bits") {
				bits = f.NonceBits
			}

			out := cmd.OutOrStdout()
			if bits == 0 {
				if len(sigs) != 2 {
					return fmt.Errorf("%w: nonce reuse needs exactly 2, got %d", recovery.ErrNotEnoughSigs, len(sigs))
				}
				key, err := recovery.RecoverNonceReuse(sigs[0], sigs[1])
				if err != nil {
					return err
				}
				addr, err := recovery.AddressFromPrivateKey(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "private key: %s\naddress:     %s\n", key, addr)
				return nil
			}

			ctx, cancel := contextWithTimeout(cmd, timeout)
			defer cancel()

			rec, err := recovery.RecoverBiasedNonces(ctx, sigs, bits, cvp.WithWarner(log), cvp.WithStrict(root.strict))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "private key: %s\naddress:     %s\n", rec.PrivateKey, rec.Address)
			for i, k := range rec.Nonces {
				fmt.Fprintf(out, "nonce %d:     0x%x\n", i, k)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&bits, "bits", 0, "upper bound on nonce size in bits, 0 for nonce reuse")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "give up after this long")
	return cmd
}
