// Package spartanbot implements a Discord bot that proxies billing
// panel administration into Discord slash commands.
//
// Spartan Bot links a Discord guild to a DezerX billing panel and lets
// synced administrators look up accounts, edit user records, and manage
// service lifecycles without leaving Discord. Every response is
// ephemeral, and every administrative command is gated on the caller
// holding an admin role on the panel itself.
//
// Key components of the package include:
//
//   - SpartanBot: The main struct that encapsulates the bot's core functionality.
//   - Discord: Handles the gateway session and interaction routing.
//   - PanelClient: The HTTP client for the billing panel's admin API.
//   - API: Provides a backend status API for monitoring and control.
//   - Store: Handles data persistence for guild links and synced roles.
//
// The bot supports the following commands:
//
//   - /link: Links the guild to a billing panel via a credentials modal.
//   - /syncdiscord: Syncs the caller's panel role into the local database.
//   - /users: Browses panel users with stateless pagination.
//   - /updateuser: Looks up a panel user and edits them through a modal.
//   - /manageservices: Browses services and applies lifecycle operations.
//
// Pagination and component state is carried entirely in Discord custom
// IDs, so the bot holds no per-message state and restarts cleanly
// mid-conversation.
package spartanbot
