package models

import "encoding/json"

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email"`
}

type RenameDeviceRequest struct {
	Name string `json:"name" binding:"required"`
}

type SetValueRequest struct {
	Value any `json:"value"`
}

type AddSceneRequest struct {
	Name string `json:"name" binding:"required"`
}

type AddScheduleRequest struct {
	Name   string `json:"name" binding:"required"`
	Cron   string `json:"cron" binding:"required"`
	RunCap int    `json:"runCap"`
	Active bool   `json:"active"`
}

type UpdateScheduleRequest struct {
	Name   *string `json:"name"`
	Cron   *string `json:"cron"`
	RunCap *int    `json:"runCap"`
	Active *bool   `json:"active"`
}

type AddTriggerRequest struct {
	Name string `json:"name" binding:"required"`
}

type AddGroupRequest struct {
	TriggerID string `json:"triggerId" binding:"required"`
	ParentID  string `json:"parentId" binding:"required"`
	Operator  string `json:"operator" binding:"required"`
	Sort      int    `json:"sort"`
}

type SetOperatorRequest struct {
	Operator string `json:"operator" binding:"required"`
}

type AddItemRequest struct {
	GroupID    string `json:"groupId" binding:"required"`
	FeatureID  string `json:"featureId" binding:"required"`
	Comparator string `json:"comparator" binding:"required"`
	Value      string `json:"value"`
	Sort       int    `json:"sort"`
}

type AddActionRequest struct {
	OwnerType string          `json:"ownerType" binding:"required"`
	OwnerID   string          `json:"ownerId" binding:"required"`
	Verb      string          `json:"verb" binding:"required"`
	FeatureID string          `json:"featureId"`
	SceneID   string          `json:"sceneId"`
	Value     json.RawMessage `json:"value"`
	Sort      int             `json:"sort"`
}
