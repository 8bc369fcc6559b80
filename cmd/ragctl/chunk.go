package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/biz"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/chunker"
	"github.com/spf13/cobra"
)

// contextChars 高亮前后各显示的字符数
const contextChars = 60

var highlightStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("0")).
	Background(lipgloss.Color("214"))

func ChunkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Preview how a file is chunked, with source spans highlighted",
		Args:  cobra.ExactArgs(1),
		RunE:  runChunk,
	}
	cmd.Flags().Int("size", chunker.DefaultChunkSize, "max characters per chunk")
	cmd.Flags().Int("overlap", chunker.DefaultChunkOverlap, "characters shared by neighbouring chunks")
	cmd.Flags().String("method", string(chunker.DefaultMethod), "auto or recursive_only")
	cmd.Flags().String("encoding", "", "tiktoken encoding for token counts, e.g. cl100k_base")
	cmd.Flags().Bool("json", false, "print chunks as JSON")
	return cmd
}

func runChunk(cmd *cobra.Command, args []string) error {
	size, _ := cmd.Flags().GetInt("size")
	overlap, _ := cmd.Flags().GetInt("overlap")
	methodFlag, _ := cmd.Flags().GetString("method")
	encoding, _ := cmd.Flags().GetString("encoding")
	asJSON, _ := cmd.Flags().GetBool("json")

	method, err := chunker.ParseMethod(methodFlag)
	if err != nil {
		return err
	}
	cfg := chunker.Config{ChunkSize: size, ChunkOverlap: overlap, Method: method}

	opts := chunker.Options{IncludePreviewMetadata: true, IncludeSpans: true}
	if encoding != "" {
		tc, err := chunker.NewTiktokenCounter(encoding)
		if err != nil {
			return err
		}
		opts.TokenCounter = tc
	}

	doc, err := chunker.ReadDocument(args[0])
	if err != nil {
		return err
	}
	chunks, err := chunker.ChunkDocuments([]chunker.Document{doc}, cfg, opts)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(chunks)
	}
	renderChunks(cmd.OutOrStdout(), doc.Text, chunks)
	return nil
}

func renderChunks(w io.Writer, text string, chunks []chunker.Chunk) {
	unresolved := 0
	for i, c := range chunks {
		md := c.Metadata
		header := fmt.Sprintf("#%d  chars=%d", md.ChunkIndex, md.ChunkChars)
		if md.TokenCount > 0 {
			header += fmt.Sprintf("  tokens=%d", md.TokenCount)
		}
		if h := headerPath(md); h != "" {
			header += "  " + h
		}

		var body string
		if md.HasSpan() {
			header += fmt.Sprintf("  span=[%d,%d)", *md.SpanStart, *md.SpanEnd)
			v := biz.Split(text, md)
			body = dimStyle.Render(tail(v.Before, contextChars)) +
				highlightStyle.Render(v.Highlight) +
				dimStyle.Render(head(v.After, contextChars))
		} else {
			unresolved++
			header += "  " + warnStyle.Render("span not found")
			body = c.Content
		}

		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, titleStyle.Render(header))
		fmt.Fprintln(w, body)
	}

	summary := fmt.Sprintf("%d chunks", len(chunks))
	if unresolved > 0 {
		summary += warnStyle.Render(fmt.Sprintf(", %d without span", unresolved))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, boxStyle.Render(summary))
}

func headerPath(md chunker.Metadata) string {
	var parts []string
	for _, h := range []string{md.H1, md.H2, md.H3} {
		if h != "" {
			parts = append(parts, h)
		}
	}
	return strings.Join(parts, " > ")
}

// head 前 n 个字符
func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// tail 后 n 个字符
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n:])
}
