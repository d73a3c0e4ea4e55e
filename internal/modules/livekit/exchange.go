package livekit

// exPermissionsChanged asks the addressed runners to push their current
// publish permissions to the media server.
const exPermissionsChanged = "permissions_changed"

type exPermissionsChangedMessage struct {
	Message string `json:"message"`
}
