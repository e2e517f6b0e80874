package keys

const (
	// notation dictionary for key formats:
	// c   = channel
	// m   = message
	// p   = profile
	// u   = user
	// tok = single-use email token
	// rev = revoked session
	// idx = index
	// All keys are lowercase; segments are separated by ":"
	// <...> = variable segment (e.g. <channel>, <msg_id>)

	// primary storage key formats
	MessageKey    = "c:%s:m:%s:%s" // c:<channel>:m:<created_unix_nano>:<msg_id>
	MessagePrefix = "c:%s:m:"      // c:<channel>:m:
	ProfileKey    = "p:%s"         // p:<user_id>
	UserKey       = "u:%s"         // u:<user_id>
	TokenKey      = "tok:%s:%s"    // tok:<kind>:<sha256_hex>
	RevokedKey    = "rev:%s"       // rev:<jti>

	// indexes
	MessageIDIndex = "idx:m:%s"         // idx:m:<msg_id> -> message key
	ReplyIndex     = "idx:m:%s:reply"   // idx:m:<parent_id>:reply -> reply msg_id
	UserEmailIndex = "idx:u:email:%s"   // idx:u:email:<lower_email> -> user_id

	// padding width (fixed for lexicographic ordering)
	TSPadWidth = 20 // e.g. %020d

	// system keys
	SystemVersionKey = "system:version"
	SchemaVersion    = "1"
)
