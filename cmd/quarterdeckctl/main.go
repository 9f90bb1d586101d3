// quarterdeckctl es el cliente CLI para el API admin del panel. Habla el
// mismo API HTTP que la UI; la sesión se pasa por flag o environment.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	Token     string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
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
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func (c *client) run(method, path string, body []byte) error {
	status, respBody, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return fmt.Errorf("fallo: status=%d body=%s", status, string(respBody))
	}
	if c.OutFormat == "text" && len(respBody) == 0 {
		fmt.Println("ok")
		return nil
	}
	c.print(status, respBody)
	return nil
}

func main() {
	var (
		baseURL = envOr("QUARTERDECK_URL", "http://localhost:8080")
		token   = envOr("QUARTERDECK_TOKEN", "")
		out     = envOr("QUARTERDECK_OUT", "text")
	)

	root := &cobra.Command{
		Use:   "quarterdeckctl",
		Short: "CLI admin para el panel (vía /api/admin)",
	}

	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del panel (env QUARTERDECK_URL)")
	root.PersistentFlags().StringVar(&token, "token", token, "Session token admin (env QUARTERDECK_TOKEN)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{HTTP: &http.Client{Timeout: 30 * time.Second}}
	syncClient := func() {
		cl.BaseURL, cl.Token, cl.OutFormat = baseURL, token, out
	}

	requireToken := func(cmd *cobra.Command, args []string) error {
		syncClient()
		if token == "" {
			return fmt.Errorf("falta session token (flag --token o env QUARTERDECK_TOKEN)")
		}
		return nil
	}

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Chequea que el panel responda",
		RunE: func(cmd *cobra.Command, args []string) error {
			syncClient()
			return cl.run("GET", "/readyz", nil)
		},
	}

	// grupo user
	userCmd := &cobra.Command{Use: "user", Short: "Operaciones sobre cuentas"}

	userCmd.AddCommand(
		&cobra.Command{
			Use:               "suspend <user-id>",
			Short:             "Suspende la cuenta (corta permisos de inmediato)",
			Args:              cobra.ExactArgs(1),
			PersistentPreRunE: requireToken,
			RunE: func(cmd *cobra.Command, args []string) error {
				return cl.run("POST", "/api/admin/users/"+args[0]+"/suspend", nil)
			},
		},
		&cobra.Command{
			Use:               "unsuspend <user-id>",
			Short:             "Reactiva la cuenta",
			Args:              cobra.ExactArgs(1),
			PersistentPreRunE: requireToken,
			RunE: func(cmd *cobra.Command, args []string) error {
				return cl.run("POST", "/api/admin/users/"+args[0]+"/unsuspend", nil)
			},
		},
		&cobra.Command{
			Use:               "send-verification <user-id>",
			Short:             "Re-envía el email de verificación",
			Args:              cobra.ExactArgs(1),
			PersistentPreRunE: requireToken,
			RunE: func(cmd *cobra.Command, args []string) error {
				return cl.run("POST", "/api/admin/users/"+args[0]+"/verification", nil)
			},
		},
		&cobra.Command{
			Use:               "reset-password <user-id>",
			Short:             "Fija un password temporal (se muestra una sola vez)",
			Args:              cobra.ExactArgs(1),
			PersistentPreRunE: requireToken,
			RunE: func(cmd *cobra.Command, args []string) error {
				return cl.run("POST", "/api/admin/users/"+args[0]+"/password-reset", nil)
			},
		},
		&cobra.Command{
			Use:               "impersonate <user-id>",
			Short:             "Emite un token single-use para actuar como el usuario",
			Args:              cobra.ExactArgs(1),
			PersistentPreRunE: requireToken,
			RunE: func(cmd *cobra.Command, args []string) error {
				return cl.run("POST", "/api/admin/users/"+args[0]+"/impersonate", nil)
			},
		},
	)

	// grupo server
	serverCmd := &cobra.Command{Use: "server", Short: "Operaciones sobre servers"}

	var targetNode string
	var allocationID int64
	var extraAllocs []int64
	var startOnDone bool
	transferCmd := &cobra.Command{
		Use:               "transfer <server-uuid>",
		Short:             "Inicia la migración del server a otro node",
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: requireToken,
		RunE: func(cmd *cobra.Command, args []string) error {
			if targetNode == "" || allocationID == 0 {
				return fmt.Errorf("se requieren --node y --allocation")
			}
			body, _ := json.Marshal(map[string]any{
				"target_node_id":            targetNode,
				"allocation_id":             allocationID,
				"additional_allocation_ids": extraAllocs,
				"start_on_completion":       startOnDone,
			})
			return cl.run("POST", "/api/admin/servers/"+args[0]+"/transfer", body)
		},
	}
	transferCmd.Flags().StringVar(&targetNode, "node", "", "node destino")
	transferCmd.Flags().Int64Var(&allocationID, "allocation", 0, "allocation primaria en el node destino")
	transferCmd.Flags().Int64SliceVar(&extraAllocs, "extra-allocations", nil, "allocations adicionales")
	transferCmd.Flags().BoolVar(&startOnDone, "start", false, "arrancar el server al completar")

	cancelCmd := &cobra.Command{
		Use:               "transfer-cancel <server-uuid>",
		Short:             "Cancela el transfer activo del server",
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: requireToken,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.run("DELETE", "/api/admin/servers/"+args[0]+"/transfer", nil)
		},
	}

	serverCmd.AddCommand(transferCmd, cancelCmd)

	// grupo node
	nodeCmd := &cobra.Command{Use: "node", Short: "Operaciones sobre nodes"}
	nodeCmd.AddCommand(&cobra.Command{
		Use:               "config <node-id>",
		Short:             "Genera la configuración del daemon del node",
		Args:              cobra.ExactArgs(1),
		PersistentPreRunE: requireToken,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.run("GET", "/api/admin/nodes/"+args[0]+"/configuration", nil)
		},
	})

	root.AddCommand(pingCmd, userCmd, serverCmd, nodeCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
