package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// Fires a gate evaluation against a running server. Usage:
//
//	AUTH_TOKEN=... gate_trigger <proposal-id> [format]
func main() {
	token := strings.TrimSpace(os.Getenv("AUTH_TOKEN"))
	if token == "" {
		fmt.Println("Missing AUTH_TOKEN environment variable")
		os.Exit(1)
	}
	if len(os.Args) < 2 {
		fmt.Println("Usage: gate_trigger <proposal-id> [DOCX|PDF|CLIPBOARD]")
		os.Exit(1)
	}
	proposalID := os.Args[1]
	format := "DOCX"
	if len(os.Args) > 2 {
		format = os.Args[2]
	}

	base := os.Getenv("SERVER_URL")
	if base == "" {
		base = "http://localhost:8082"
	}

	url := fmt.Sprintf("%s/api/v1/proposals/%s/export/evaluate", base, proposalID)
	body := strings.NewReader(fmt.Sprintf(`{"export_format":%q}`, format))
	req, err := http.NewRequest("POST", url, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	fmt.Printf("Response Status: %s\n", resp.Status)
	payload, _ := io.ReadAll(resp.Body)
	fmt.Println(string(payload))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
