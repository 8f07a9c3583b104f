// Package catalog turns the tools, resources and prompts of registered MCP
// servers into a catalog the agent's planner can use.
//
// Tool names from different servers share one identifier space. Registry
// maps each (server, tool) pair to a name matching
// ^[A-Za-z_][A-Za-z0-9_.-]{0,62}$ and back, suffixing collisions with _1,
// _2 and so on. Service.GetServerInfo serves catalogs from the capability
// cache and only connects to a server on a miss.
package catalog
