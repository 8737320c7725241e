package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var recordsToolDef = mcp.NewTool("dashboard_records",
	mcp.WithDescription("List business clients from the OLT report. "+
		"Filters by OLT NAME (case-insensitive substring) and returns one page of rows. "+
		"A warning is included when the data could not be refreshed."),
	mcp.WithString("query",
		mcp.Description("Substring of the OLT name to match. Empty lists every client."),
	),
	mcp.WithNumber("limit",
		mcp.Description("Rows per page (default 200, max 5000)."),
	),
	mcp.WithNumber("offset",
		mcp.Description("Rows to skip."),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var summaryToolDef = mcp.NewTool("dashboard_summary",
	mcp.WithDescription("Count clients per OLT for the rows matching query, largest first, "+
		"with the total number of clients and distinct OLTs."),
	mcp.WithString("query",
		mcp.Description("Substring of the OLT name to match. Empty summarizes every client."),
	),
	mcp.WithReadOnlyHintAnnotation(true),
)

var statusToolDef = mcp.NewTool("dashboard_status",
	mcp.WithDescription("Report the age, size and fetch history of the cached dataset. "+
		"Set refresh to reload it from the source first."),
	mcp.WithBoolean("refresh",
		mcp.Description("Reload the dataset before reporting."),
	),
)
