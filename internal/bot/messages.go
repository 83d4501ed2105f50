package bot

// =============================================================================
// General messages
// =============================================================================

const (
	MsgOk            = `Ok!`
	MsgUnexpectedErr = `Unexpected error: %s`
	MsgStartPrompt   = "Send a photo of the item you want to sell and I'll draft a listing for it."
	MsgVersionInfo   = "Version: %s\nBuilt: %s"
	MsgHelp          = `
		Send one or more photos of an item and I'll research the market and draft a listing.

		/item <description> | <category> - draft without a photo
		/history - show your latest drafts
		/clear - delete your draft history
		/edit <field> <value> - edit the last draft (title, description, price, condition, category)
		/keys - show configured API keys
		/key <name> <value> - set an API key
		/cancel - stop the current draft
	`
)

// =============================================================================
// Identification messages
// =============================================================================

const (
	MsgIdentifying          = "🔍 Looking at the photo..."
	MsgIdentified           = "Identified: *%s* (%s)"
	MsgIdentifyFailed       = "Could not identify the item: %s"
	MsgVisionNotAvailable   = "Photo identification is not available. Use /item <description> | <category> instead."
	MsgItemUsage            = "Usage: `/item <description> | <category>`"
	MsgDownloadFailed       = "Could not download the photo: %s"
	MsgIdentificationIgnore = "Nothing to draft yet. Send a photo first."
)

// =============================================================================
// Pipeline progress messages
// =============================================================================

const (
	MsgStageGrounding      = "⏳ Researching the market..."
	MsgStageComparables    = "⏳ Searching for comparable sold items..."
	MsgStageSynthesizing   = "⏳ Writing the draft..."
	MsgStageComplete       = "✅ Draft ready"
	MsgStageFailed         = "❌ %s"
	MsgDraftCancelled      = "Draft cancelled."
	BtnRegenerate          = "🔁 Regenerate"
	MsgNothingToRegenerate = "Nothing to regenerate. Send a photo first."
)

// =============================================================================
// History messages
// =============================================================================

const (
	MsgHistoryEmpty   = "No drafts yet."
	MsgHistoryHeader  = "*Latest drafts* (%s)\n\n"
	MsgHistoryCleared = "Draft history cleared."
)

// =============================================================================
// Edit messages
// =============================================================================

const (
	MsgEditUsage        = "Usage: `/edit <field> <value>`\nFields: title, description, price, condition, category"
	MsgEditNoDraft      = "No draft to edit. Send a photo first."
	MsgEditUnknownField = "Unknown field `%s`. Fields: title, description, price, condition, category"
	MsgEditSaved        = "Draft updated."
)

// =============================================================================
// Credential messages
// =============================================================================

const (
	MsgKeyUsage        = "Usage: `/key <name> <value>`\nNames: %s"
	MsgKeyUnknown      = "Unknown key `%s`. Names: %s"
	MsgKeySaved        = "✅ Key `%s` saved."
	MsgKeyCleared      = "🗑 Key `%s` cleared."
	MsgKeysHeader      = "*API keys*\n"
	MsgKeyNotSet       = "not set"
	MsgKeyFromEnv      = "%s (default)"
	MsgKeyNotAvailable = "Key storage is not available."
)

// =============================================================================
// Admin command messages
// =============================================================================

const (
	MsgAdminUsage           = "Usage:\n`/admin users add <user_id>`\n`/admin users remove <user_id>`\n`/admin users list`"
	MsgAdminUserAddUsage    = "Usage: `/admin users add <user_id>`"
	MsgAdminUserRemoveUsage = "Usage: `/admin users remove <user_id>`"
	MsgAdminUserInvalidID   = "Invalid user ID. Give a number."
	MsgAdminUserAdded       = "✅ User `%d` added."
	MsgAdminUserRemoved     = "🗑 User `%d` removed."
	MsgAdminNoUsers         = "No allowed users."
	MsgAdminAllowedUsers    = "*Allowed users:*\n"
)
