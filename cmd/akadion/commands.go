package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artaGhs/Akadion-chatbot-backend/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the knowledge base a question",
	Long: `Ask the knowledge base a question.

Examples:
  akadion ask "How do I join a research group?"
  akadion ask --session abc123 "And how do I leave one?"
  akadion ask --stream "Summarize the community guidelines"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")
		stream, _ := cmd.Flags().GetBool("stream")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"message": question}
		if sessionID != "" {
			req["session_id"] = sessionID
		}

		if stream {
			return streamAnswer(cmd, client, req)
		}

		resp, err := client.post(cmd.Context(), "/chat/", req)
		if err != nil {
			return err
		}

		var answer struct {
			SessionID string `json:"session_id"`
			Response  string `json:"response"`
			Sources   []struct {
				Source string  `json:"source"`
				Score  float32 `json:"relevance_score"`
			} `json:"sources"`
		}
		if err := decodeJSON(resp, &answer); err != nil {
			return err
		}

		fmt.Println(answer.Response)
		if len(answer.Sources) > 0 {
			fmt.Println()
			for _, s := range answer.Sources {
				fmt.Printf("  %s [%.3f]\n", colorize(colorCyan, s.Source), s.Score)
			}
		}
		printStatus("Session", "%s", answer.SessionID)
		return nil
	},
}

func streamAnswer(cmd *cobra.Command, client *apiClient, req map[string]any) error {
	resp, err := client.post(cmd.Context(), "/chat/stream", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			break
		}
		fmt.Print(data)
	}
	fmt.Println()
	return scanner.Err()
}

func init() {
	askCmd.Flags().String("session", "", "session ID to continue a conversation")
	askCmd.Flags().Bool("stream", false, "stream the answer as it is generated")
}

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload documents into the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			resp, err := client.postFiles(cmd.Context(), "/ingest/upload", "file", args)
			if err != nil {
				return err
			}
			var result struct {
				Filename      string `json:"filename"`
				ChunksCreated int    `json:"chunks_created"`
			}
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("Ingested %s (%d chunks)", result.Filename, result.ChunksCreated)
			return nil
		}

		resp, err := client.postFiles(cmd.Context(), "/ingest/upload-multiple", "files", args)
		if err != nil {
			return err
		}
		var result struct {
			Results []struct {
				Filename string `json:"filename"`
				Status   string `json:"status"`
				Chunks   int    `json:"chunks_created,omitempty"`
				Error    string `json:"error,omitempty"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		failed := 0
		for _, r := range result.Results {
			if r.Status == "success" {
				printSuccess("%s (%d chunks)", r.Filename, r.Chunks)
			} else {
				printError("%s: %s", r.Filename, r.Error)
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(result.Results))
		}
		return nil
	},
}

// --- documents ---

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/ingest/documents")
		if err != nil {
			return err
		}

		var result struct {
			Documents []struct {
				ID         string `json:"id"`
				Filename   string `json:"filename"`
				SizeBytes  int64  `json:"size_bytes"`
				ChunkCount int    `json:"chunk_count"`
				UploadedAt string `json:"uploaded_at"`
			} `json:"documents"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Documents) == 0 {
			fmt.Println("No documents uploaded.")
			return nil
		}

		for _, d := range result.Documents {
			fmt.Printf("%s  %s  %s (%d chunks, %d bytes)\n",
				colorize(colorCyan, d.ID[:8]),
				d.UploadedAt,
				colorize(colorBold, d.Filename),
				d.ChunkCount,
				d.SizeBytes,
			)
		}
		return nil
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base and session statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/ingest/stats")
		if err != nil {
			return err
		}
		var kb struct {
			TotalChunks    int `json:"total_chunks"`
			TotalDocuments int `json:"total_documents"`
		}
		if err := decodeJSON(resp, &kb); err != nil {
			return err
		}

		printStatus("Documents", "%d", kb.TotalDocuments)
		printStatus("Chunks", "%d", kb.TotalChunks)

		resp, err = client.get(cmd.Context(), "/chat/stats")
		if err != nil {
			return err
		}
		var sessions struct {
			ActiveSessions int `json:"active_sessions"`
			TotalMessages  int `json:"total_messages"`
		}
		if err := decodeJSON(resp, &sessions); err != nil {
			return err
		}

		printStatus("Active sessions", "%d", sessions.ActiveSessions)
		printStatus("Messages in memory", "%d", sessions.TotalMessages)
		return nil
	},
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all documents from the knowledge base",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL knowledge base content. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/ingest/clear")
		if err != nil {
			return err
		}
		var result struct {
			ChunksRemoved int `json:"chunks_removed"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Removed %d chunks", result.ChunksRemoved)
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm knowledge base deletion")
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's conversation history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/chat/conversation/"+args[0])
		if err != nil {
			return err
		}

		var conv struct {
			SessionID string `json:"session_id"`
			Messages  []struct {
				Role      string `json:"role"`
				Content   string `json:"content"`
				Timestamp string `json:"timestamp"`
			} `json:"messages"`
		}
		if err := decodeJSON(resp, &conv); err != nil {
			return err
		}

		if len(conv.Messages) == 0 {
			fmt.Println("No messages in this session.")
			return nil
		}

		for _, m := range conv.Messages {
			label := "Human"
			if m.Role == "assistant" {
				label = "Assistant"
			}
			fmt.Printf("%s %s\n", colorize(colorBold, label+":"), m.Content)
		}
		return nil
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Delete a session's conversation history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/chat/conversation/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Cleared session %s", args[0])
		return nil
	},
}

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/chat/cleanup-sessions", nil)
		if err != nil {
			return err
		}
		var result map[string]int
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Removed %d expired sessions", result["sessions_removed"])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
	sessionsCmd.AddCommand(sessionsCleanupCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(config.ConfigFilePath())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}
