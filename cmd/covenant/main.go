// covenant es el CLI cliente: maneja claves, firma acciones y habla con el
// API del coordinator.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/covenant/internal/action"
	"github.com/dropDatabas3/covenant/internal/fingerprint"
	"github.com/dropDatabas3/covenant/internal/identity"
	"github.com/dropDatabas3/covenant/internal/sig"
)

type client struct {
	BaseURL string
	HTTP    *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	var v any
	if json.Unmarshal(body, &v) == nil {
		p, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(p))
		return
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

// actionFlags junta los campos de la acción que comparten sign/propose/etc.
type actionFlags struct {
	vault    string
	domain   uint64
	sequence uint64
	target   string
	amount   string
	payload  string // base64, opcional
}

func (f *actionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.vault, "vault", "", "address del vault (0x...)")
	cmd.Flags().Uint64Var(&f.domain, "domain", 0, "identificador de dominio")
	cmd.Flags().Uint64Var(&f.sequence, "sequence", 0, "sequence actual del vault")
	cmd.Flags().StringVar(&f.target, "target", "", "address destino (0x...)")
	cmd.Flags().StringVar(&f.amount, "amount", "0", "monto (entero decimal)")
	cmd.Flags().StringVar(&f.payload, "payload", "", "payload opaco en base64 (opcional)")
	_ = cmd.MarkFlagRequired("vault")
	_ = cmd.MarkFlagRequired("target")
}

func (f *actionFlags) build() (identity.Address, action.Action, error) {
	vault, err := identity.Parse(f.vault)
	if err != nil {
		return identity.Zero, action.Action{}, fmt.Errorf("vault: %w", err)
	}
	target, err := identity.Parse(f.target)
	if err != nil {
		return identity.Zero, action.Action{}, fmt.Errorf("target: %w", err)
	}
	amount, ok := new(big.Int).SetString(f.amount, 10)
	if !ok {
		return identity.Zero, action.Action{}, fmt.Errorf("amount %q no es un entero decimal", f.amount)
	}
	var payload []byte
	if f.payload != "" {
		if payload, err = base64.StdEncoding.DecodeString(f.payload); err != nil {
			return identity.Zero, action.Action{}, fmt.Errorf("payload: %w", err)
		}
	}
	a := action.Action{
		Sequence: f.sequence,
		Target:   target,
		Amount:   amount,
		Payload:  payload,
	}
	if err := a.Validate(); err != nil {
		return identity.Zero, action.Action{}, err
	}
	return vault, a, nil
}

func loadKey(path string) (*secp256k1.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("la clave no es hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("clave de %d bytes, se esperan 32", len(raw))
	}
	return secp256k1.PrivKeyFromBytes(raw), nil
}

func signAction(keyPath string, vault identity.Address, domain uint64, a action.Action) (identity.Address, string, error) {
	priv, err := loadKey(keyPath)
	if err != nil {
		return identity.Zero, "", err
	}
	fp := fingerprint.Compute(vault, domain, a)
	raw := sig.Sign(fingerprint.Digest(fp), priv)
	return sig.AddressOf(priv), "0x" + hex.EncodeToString(raw), nil
}

func main() {
	var (
		baseURL = envOr("COVENANT_URL", "http://localhost:8080")
		keyPath string
	)

	root := &cobra.Command{
		Use:   "covenant",
		Short: "Cliente del coordinator: claves, firmas y propuestas",
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del coordinator (env COVENANT_URL)")
	root.PersistentFlags().StringVar(&keyPath, "key", "", "archivo con la clave privada (hex de 32 bytes)")

	cl := &client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 30 * time.Second}}

	// keygen
	var keyOut string
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Genera una clave secp256k1 nueva y muestra su identidad",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := secp256k1.GeneratePrivateKey()
			if err != nil {
				return err
			}
			keyHex := hex.EncodeToString(priv.Serialize())
			if keyOut != "" {
				if err := os.WriteFile(keyOut, []byte(keyHex+"\n"), 0o600); err != nil {
					return err
				}
				fmt.Printf("key:     %s\n", keyOut)
			} else {
				fmt.Printf("key:     %s\n", keyHex)
			}
			fmt.Printf("address: %s\n", sig.AddressOf(priv))
			return nil
		},
	}
	keygenCmd.Flags().StringVar(&keyOut, "out", "", "archivo destino para la clave (permisos 0600)")

	// address
	addressCmd := &cobra.Command{
		Use:   "address",
		Short: "Muestra la identidad de una clave privada",
		RunE: func(cmd *cobra.Command, args []string) error {
			priv, err := loadKey(keyPath)
			if err != nil {
				return err
			}
			fmt.Println(sig.AddressOf(priv))
			return nil
		},
	}

	// fingerprint
	fpFlags := &actionFlags{}
	fingerprintCmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Calcula el fingerprint de una acción sin firmarla",
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, a, err := fpFlags.build()
			if err != nil {
				return err
			}
			fmt.Println(fingerprint.Compute(vault, fpFlags.domain, a))
			return nil
		},
	}
	fpFlags.register(fingerprintCmd)

	// sign
	signFlags := &actionFlags{}
	signCmd := &cobra.Command{
		Use:   "sign",
		Short: "Firma una acción y muestra identidad + firma",
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, a, err := signFlags.build()
			if err != nil {
				return err
			}
			id, sigHex, err := signAction(keyPath, vault, signFlags.domain, a)
			if err != nil {
				return err
			}
			fmt.Printf("fingerprint: %s\n", fingerprint.Compute(vault, signFlags.domain, a))
			fmt.Printf("identity:    %s\n", id)
			fmt.Printf("signature:   %s\n", sigHex)
			return nil
		},
	}
	signFlags.register(signCmd)

	// propose
	proposeFlags := &actionFlags{}
	proposeCmd := &cobra.Command{
		Use:   "propose",
		Short: "Firma y propone una acción nueva",
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, a, err := proposeFlags.build()
			if err != nil {
				return err
			}
			id, sigHex, err := signAction(keyPath, vault, proposeFlags.domain, a)
			if err != nil {
				return err
			}
			body, _ := json.Marshal(map[string]any{
				"action":    a,
				"proposer":  id,
				"signature": sigHex,
			})
			path := fmt.Sprintf("/v1/vaults/%s/%d/actions", vault, proposeFlags.domain)
			status, resp, err := cl.do("POST", path, body)
			if err != nil {
				return err
			}
			cl.print(status, resp)
			return nil
		},
	}
	proposeFlags.register(proposeCmd)

	// approve
	approveFlags := &actionFlags{}
	approveCmd := &cobra.Command{
		Use:   "approve",
		Short: "Firma una acción pendiente y sube la aprobación",
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, a, err := approveFlags.build()
			if err != nil {
				return err
			}
			id, sigHex, err := signAction(keyPath, vault, approveFlags.domain, a)
			if err != nil {
				return err
			}
			fp := fingerprint.Compute(vault, approveFlags.domain, a)
			body, _ := json.Marshal(map[string]any{
				"identity":  id,
				"signature": sigHex,
			})
			path := fmt.Sprintf("/v1/vaults/%s/%d/actions/%s/approvals", vault, approveFlags.domain, fp)
			status, resp, err := cl.do("POST", path, body)
			if err != nil {
				return err
			}
			cl.print(status, resp)
			return nil
		},
	}
	approveFlags.register(approveCmd)

	// list
	var listVault string
	var listDomain uint64
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lista las acciones pendientes de un vault/dominio",
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := identity.Parse(listVault)
			if err != nil {
				return err
			}
			status, resp, err := cl.do("GET", fmt.Sprintf("/v1/vaults/%s/%d/actions", vault, listDomain), nil)
			if err != nil {
				return err
			}
			cl.print(status, resp)
			return nil
		},
	}
	listCmd.Flags().StringVar(&listVault, "vault", "", "address del vault (0x...)")
	listCmd.Flags().Uint64Var(&listDomain, "domain", 0, "identificador de dominio")
	_ = listCmd.MarkFlagRequired("vault")

	// execute: junta las firmas acumuladas en el coordinator, las ordena por
	// identidad y manda el batch al ledger.
	var execVault, execFingerprint string
	var execDomain uint64
	executeCmd := &cobra.Command{
		Use:   "execute",
		Short: "Ejecuta una acción pendiente con las firmas acumuladas",
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := identity.Parse(execVault)
			if err != nil {
				return err
			}
			path := fmt.Sprintf("/v1/vaults/%s/%d/actions/%s", vault, execDomain, execFingerprint)
			status, resp, err := cl.do("GET", path, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				cl.print(status, resp)
				return fmt.Errorf("no se pudo leer la acción pendiente (status=%d)", status)
			}

			var pending struct {
				Action    action.Action `json:"action"`
				Approvals []struct {
					Identity  identity.Address `json:"identity"`
					Signature string           `json:"signature"`
				} `json:"approvals"`
			}
			if err := json.Unmarshal(resp, &pending); err != nil {
				return err
			}
			// Orden ascendente estricto por identidad declarada.
			sort.Slice(pending.Approvals, func(i, j int) bool {
				return pending.Approvals[i].Identity.Less(pending.Approvals[j].Identity)
			})
			sigs := make([]string, len(pending.Approvals))
			for i, ap := range pending.Approvals {
				sigs[i] = ap.Signature
			}

			body, _ := json.Marshal(map[string]any{
				"action":     pending.Action,
				"signatures": sigs,
			})
			status, resp, err = cl.do("POST", fmt.Sprintf("/v1/vaults/%s/%d/execute", vault, execDomain), body)
			if err != nil {
				return err
			}
			cl.print(status, resp)
			return nil
		},
	}
	executeCmd.Flags().StringVar(&execVault, "vault", "", "address del vault (0x...)")
	executeCmd.Flags().Uint64Var(&execDomain, "domain", 0, "identificador de dominio")
	executeCmd.Flags().StringVar(&execFingerprint, "fingerprint", "", "fingerprint de la acción (0x...)")
	_ = executeCmd.MarkFlagRequired("vault")
	_ = executeCmd.MarkFlagRequired("fingerprint")

	root.AddCommand(keygenCmd, addressCmd, fingerprintCmd, signCmd, proposeCmd, approveCmd, listCmd, executeCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
