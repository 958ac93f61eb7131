package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/BrightWayAI/grant-builder-sub003/internal/db"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Prints the most recent export gate audit records across all proposals.
func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `
		SELECT a.id, p.title, a.export_format, a.decision, cardinality(a.reasons),
		       a.attestation_text IS NOT NULL, a.created_at
		FROM audit_records a
		JOIN proposals p ON p.id = a.proposal_id
		ORDER BY a.created_at DESC LIMIT 25
	`)
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Audit ID", "Proposal", "Format", "Decision", "Reasons", "Attested", "At"})

	for rows.Next() {
		var auditID, title, format, decision string
		var reasonCount int
		var attested bool
		var createdAt time.Time

		if err := rows.Scan(&auditID, &title, &format, &decision, &reasonCount, &attested, &createdAt); err != nil {
			log.Printf("Scan error: %v", err)
			continue
		}

		attestedStr := ""
		if attested {
			attestedStr = "yes"
		}
		if len(title) > 32 {
			title = title[:29] + "..."
		}

		t.AppendRow(table.Row{auditID[:8], title, format, decision, reasonCount, attestedStr, createdAt.Format("Jan 02 15:04")})
	}
	t.Render()
}
