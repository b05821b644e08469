package expense_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// RegisterExpenseTools registers the expense-tracking tools with the MCP
// server. Every handler delegates to the dispatcher.
func RegisterExpenseTools(s *mcpserver.MCPServer, d *Dispatcher) error {
	if d == nil {
		return fmt.Errorf("dispatcher is required")
	}

	createTool := mcp.NewTool(ToolCreateSpreadsheet,
		mcp.WithDescription("Create a new expense spreadsheet in Google Sheets with the standard ledger columns"),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("Title of the new spreadsheet"),
		),
	)
	s.AddTool(createTool, toolHandler(d, ToolCreateSpreadsheet))

	addTool := mcp.NewTool(ToolAddExpense,
		mcp.WithDescription("Record a single expense as a new row in an expense spreadsheet"),
		mcp.WithString("spreadsheet_id",
			mcp.Description("ID of the target spreadsheet (falls back to the configured default)"),
		),
		mcp.WithString("amount",
			mcp.Required(),
			mcp.Description("Positive decimal amount, e.g. '12.50' (a comma decimal separator is accepted)"),
		),
		mcp.WithString("currency",
			mcp.Required(),
			mcp.Description("ISO 4217 currency code, e.g. 'EUR'"),
		),
		mcp.WithString("category",
			mcp.Required(),
			mcp.Description("Expense category, e.g. 'food' or 'travel'"),
		),
		mcp.WithString("date",
			mcp.Description("Date of the expense as YYYY-MM-DD (defaults to today)"),
		),
		mcp.WithString("note",
			mcp.Description("Free-form note about the expense"),
		),
	)
	s.AddTool(addTool, toolHandler(d, ToolAddExpense))

	listTool := mcp.NewTool(ToolListRecentExpenses,
		mcp.WithDescription("List the most recent expenses from an expense spreadsheet"),
		mcp.WithString("spreadsheet_id",
			mcp.Description("ID of the spreadsheet to read (falls back to the configured default)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of expenses to return (default: 10)"),
		),
	)
	s.AddTool(listTool, toolHandler(d, ToolListRecentExpenses))

	return nil
}

// toolHandler adapts a dispatcher tool to an MCP handler, rendering the
// result as JSON text or a tool error.
func toolHandler(d *Dispatcher, tool string) func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})

		res := d.Dispatch(ctx, tool, args)
		if !res.OK {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %s", res.Kind, res.Message)), nil
		}

		payload, err := json.MarshalIndent(res.Data, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to render result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	}
}
