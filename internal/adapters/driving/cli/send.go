package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/dingsync/internal/core/domain"
)

var sendCmd = &cobra.Command{
	Use:   "send [app-id]",
	Short: "Send a work notification",
	Long: `Send a work notification through an app.

Recipients are remote user ids, remote department ids, the whole
organisation, or local employee ids. Only one kind is used per message.

Examples:
  dingsync send 0b6c1f9e --user manager01 --text "Payroll is ready"
  dingsync send 0b6c1f9e --dept 1024 --text "Office closed"
  dingsync send 0b6c1f9e --all --text "Happy holidays"
  dingsync send 0b6c1f9e --employee 12 --employee 13 --text "Welcome"
  dingsync send 0b6c1f9e --user u1 --body '{"msgtype":"link","link":{...}}'`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

// Flags for send.
var (
	sendUsers     []string
	sendDepts     []int64
	sendAll       bool
	sendEmployees []int64
	sendText      string
	sendBody      string
)

func init() {
	f := sendCmd.Flags()
	f.StringArrayVar(&sendUsers, "user", nil, "remote user id (repeatable)")
	f.Int64SliceVar(&sendDepts, "dept", nil, "remote department id (repeatable)")
	f.BoolVar(&sendAll, "all", false, "send to every user of the organisation")
	f.Int64SliceVar(&sendEmployees, "employee", nil, "local employee id (repeatable)")
	f.StringVar(&sendText, "text", "", "plain text content")
	f.StringVar(&sendBody, "body", "", "message document as JSON")
	rootCmd.AddCommand(sendCmd)
}

func messageBody() (domain.MessageBody, error) {
	switch {
	case sendText != "" && sendBody != "":
		return nil, domain.Preconditionf("--text and --body are mutually exclusive")
	case sendText != "":
		return domain.TextMessage(sendText), nil
	case sendBody != "":
		var body domain.MessageBody
		if err := json.Unmarshal([]byte(sendBody), &body); err != nil {
			return nil, fmt.Errorf("%w: parse --body: %v", domain.ErrInvalidInput, err)
		}
		return body, nil
	default:
		return nil, domain.Preconditionf("--text or --body is required")
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	if messageService == nil {
		return errors.New("message service not configured")
	}

	body, err := messageBody()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var taskID string
	if len(sendEmployees) > 0 {
		taskID, err = messageService.SendToEmployees(ctx, args[0], sendEmployees, body)
	} else {
		taskID, err = messageService.Send(ctx, args[0], domain.Message{
			Target: domain.MessageTarget{
				UserIDs:       sendUsers,
				DepartmentIDs: sendDepts,
				ToAllUsers:    sendAll,
			},
			Body: body,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}

	cmd.Printf("Sent message, task id: %s\n", taskID)
	return nil
}
