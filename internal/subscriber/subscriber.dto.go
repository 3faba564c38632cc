package subscriber

type SubscribeRequest struct {
	Email        string `json:"email" validate:"required,email"`
	PlatformName string `json:"platform_name,omitempty"`
	Username     string `json:"username,omitempty"`
}

type AddProfileRequest struct {
	PlatformName string `json:"platform_name" validate:"required"`
	Username     string `json:"username" validate:"required"`
}

type UpdateUsernameRequest struct {
	Username string `json:"username" validate:"required"`
}

type GroupActionRequest struct {
	Action            string `json:"action" validate:"required,oneof=create_group join_group leave_group"`
	GroupName         string `json:"group_name,omitempty"`
	ExistingGroupName string `json:"existing_group_name,omitempty"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=ios android web"`
}
