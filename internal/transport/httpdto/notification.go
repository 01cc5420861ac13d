package httpdto

type UpdateFCMTokenRequest struct {
	FCMToken string `json:"fcmToken" binding:"required"`
	DeviceID string `json:"deviceId"`
}

type RemoveFCMTokenRequest struct {
	DeviceID string `json:"deviceId"`
}

type NotificationUnreadCountResponse struct {
	UnreadCount int64 `json:"unreadCount"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

type RemoveFCMTokenResponse struct {
	Removed int64 `json:"removed"`
}
