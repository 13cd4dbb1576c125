package db

import (
	"context"
	"time"

	"homehub/internal/models"
)

// DeviceByID fetches a device by id
func (d *DB) DeviceByID(ctx context.Context, id string) (*models.Device, error) {
	var dev models.Device
	err := d.pool.QueryRow(ctx, "SELECT id, hardware_id, name, token, cloud_id FROM devices WHERE id = $1", id).
		Scan(&dev.ID, &dev.HardwareID, &dev.Name, &dev.Token, &dev.CloudID)
	if err != nil {
		return nil, err
	}
	dev.Status = models.StatusDisconnected
	return &dev, nil
}

// DeviceByHardwareID fetches a device by its hardware id
func (d *DB) DeviceByHardwareID(ctx context.Context, hardwareID string) (*models.Device, error) {
	var dev models.Device
	err := d.pool.QueryRow(ctx, "SELECT id, hardware_id, name, token, cloud_id FROM devices WHERE hardware_id = $1", hardwareID).
		Scan(&dev.ID, &dev.HardwareID, &dev.Name, &dev.Token, &dev.CloudID)
	if err != nil {
		return nil, err
	}
	dev.Status = models.StatusDisconnected
	return &dev, nil
}

// Devices fetches all devices
func (d *DB) Devices(ctx context.Context) ([]models.Device, error) {
	rows, err := d.pool.Query(ctx, "SELECT id, hardware_id, name, token, cloud_id FROM devices")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		var dev models.Device
		if err := rows.Scan(&dev.ID, &dev.HardwareID, &dev.Name, &dev.Token, &dev.CloudID); err != nil {
			return nil, err
		}
		dev.Status = models.StatusDisconnected
		devices = append(devices, dev)
	}
	return devices, rows.Err()
}

// CreateDevice inserts a new device
func (d *DB) CreateDevice(ctx context.Context, dev *models.Device) error {
	_, err := d.pool.Exec(ctx,
		"INSERT INTO devices (id, hardware_id, name, token, cloud_id) VALUES ($1, $2, $3, $4, $5)",
		dev.ID, dev.HardwareID, dev.Name, dev.Token, dev.CloudID)
	return err
}

// SaveDeviceName updates a device's display name
func (d *DB) SaveDeviceName(ctx context.Context, id, name string) error {
	_, err := d.pool.Exec(ctx, "UPDATE devices SET name = $1 WHERE id = $2", name, id)
	return err
}

// Features fetches all features
func (d *DB) Features(ctx context.Context) ([]models.Feature, error) {
	rows, err := d.pool.Query(ctx, "SELECT id, device_id, local_id, name, kind, caps, value, cloud_code FROM features")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var features []models.Feature
	for rows.Next() {
		var f models.Feature
		if err := rows.Scan(&f.ID, &f.DeviceID, &f.LocalID, &f.Name, &f.Kind, &f.Caps, &f.Value, &f.CloudCode); err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// FeaturesByDevice fetches the features belonging to one device
func (d *DB) FeaturesByDevice(ctx context.Context, deviceID string) ([]models.Feature, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT id, device_id, local_id, name, kind, caps, value, cloud_code FROM features WHERE device_id = $1", deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var features []models.Feature
	for rows.Next() {
		var f models.Feature
		if err := rows.Scan(&f.ID, &f.DeviceID, &f.LocalID, &f.Name, &f.Kind, &f.Caps, &f.Value, &f.CloudCode); err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// CreateFeature inserts a new feature
func (d *DB) CreateFeature(ctx context.Context, f *models.Feature) error {
	_, err := d.pool.Exec(ctx,
		"INSERT INTO features (id, device_id, local_id, name, kind, caps, value, cloud_code) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		f.ID, f.DeviceID, f.LocalID, f.Name, f.Kind, f.Caps, f.Value, f.CloudCode)
	return err
}

// SaveFeatureValue persists a feature's encoded value
func (d *DB) SaveFeatureValue(ctx context.Context, id, encoded string) error {
	_, err := d.pool.Exec(ctx, "UPDATE features SET value = $1 WHERE id = $2", encoded, id)
	return err
}

// Scenes fetches all scenes
func (d *DB) Scenes(ctx context.Context) ([]models.Scene, error) {
	rows, err := d.pool.Query(ctx, "SELECT id, name, last_triggered FROM scenes")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenes []models.Scene
	for rows.Next() {
		var s models.Scene
		if err := rows.Scan(&s.ID, &s.Name, &s.LastTriggered); err != nil {
			return nil, err
		}
		scenes = append(scenes, s)
	}
	return scenes, rows.Err()
}

// SceneByID fetches a scene
func (d *DB) SceneByID(ctx context.Context, id string) (*models.Scene, error) {
	var s models.Scene
	err := d.pool.QueryRow(ctx, "SELECT id, name, last_triggered FROM scenes WHERE id = $1", id).
		Scan(&s.ID, &s.Name, &s.LastTriggered)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateScene inserts a new scene
func (d *DB) CreateScene(ctx context.Context, s *models.Scene) error {
	_, err := d.pool.Exec(ctx, "INSERT INTO scenes (id, name, last_triggered) VALUES ($1, $2, $3)",
		s.ID, s.Name, s.LastTriggered)
	return err
}

// SaveSceneTriggered updates a scene's last-trigger timestamp
func (d *DB) SaveSceneTriggered(ctx context.Context, id string, at time.Time) error {
	_, err := d.pool.Exec(ctx, "UPDATE scenes SET last_triggered = $1 WHERE id = $2", at, id)
	return err
}

// DeleteScene removes a scene and its actions
func (d *DB) DeleteScene(ctx context.Context, id string) error {
	if _, err := d.pool.Exec(ctx, "DELETE FROM actions WHERE owner_type = 'scene' AND owner_id = $1", id); err != nil {
		return err
	}
	_, err := d.pool.Exec(ctx, "DELETE FROM scenes WHERE id = $1", id)
	return err
}

// Schedules fetches all schedules
func (d *DB) Schedules(ctx context.Context) ([]models.Schedule, error) {
	rows, err := d.pool.Query(ctx, "SELECT id, name, cron, runs, run_cap, active FROM schedules")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		var s models.Schedule
		if err := rows.Scan(&s.ID, &s.Name, &s.Cron, &s.Runs, &s.RunCap, &s.Active); err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// ScheduleByID fetches a schedule
func (d *DB) ScheduleByID(ctx context.Context, id string) (*models.Schedule, error) {
	var s models.Schedule
	err := d.pool.QueryRow(ctx, "SELECT id, name, cron, runs, run_cap, active FROM schedules WHERE id = $1", id).
		Scan(&s.ID, &s.Name, &s.Cron, &s.Runs, &s.RunCap, &s.Active)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSchedule inserts a new schedule
func (d *DB) CreateSchedule(ctx context.Context, s *models.Schedule) error {
	_, err := d.pool.Exec(ctx,
		"INSERT INTO schedules (id, name, cron, runs, run_cap, active) VALUES ($1, $2, $3, $4, $5, $6)",
		s.ID, s.Name, s.Cron, s.Runs, s.RunCap, s.Active)
	return err
}

// SaveSchedule updates a schedule's editable fields
func (d *DB) SaveSchedule(ctx context.Context, s *models.Schedule) error {
	_, err := d.pool.Exec(ctx,
		"UPDATE schedules SET name = $1, cron = $2, run_cap = $3, active = $4 WHERE id = $5",
		s.Name, s.Cron, s.RunCap, s.Active, s.ID)
	return err
}

// SaveScheduleRuns persists a schedule's run counter
func (d *DB) SaveScheduleRuns(ctx context.Context, id string, runs int) error {
	_, err := d.pool.Exec(ctx, "UPDATE schedules SET runs = $1 WHERE id = $2", runs, id)
	return err
}

// DeleteSchedule removes a schedule and its actions
func (d *DB) DeleteSchedule(ctx context.Context, id string) error {
	if _, err := d.pool.Exec(ctx, "DELETE FROM actions WHERE owner_type = 'schedule' AND owner_id = $1", id); err != nil {
		return err
	}
	_, err := d.pool.Exec(ctx, "DELETE FROM schedules WHERE id = $1", id)
	return err
}

// Triggers fetches all triggers
func (d *DB) Triggers(ctx context.Context) ([]models.Trigger, error) {
	rows, err := d.pool.Query(ctx, "SELECT id, name, last_triggered FROM triggers")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []models.Trigger
	for rows.Next() {
		var t models.Trigger
		if err := rows.Scan(&t.ID, &t.Name, &t.LastTriggered); err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// TriggerByID fetches a trigger
func (d *DB) TriggerByID(ctx context.Context, id string) (*models.Trigger, error) {
	var t models.Trigger
	err := d.pool.QueryRow(ctx, "SELECT id, name, last_triggered FROM triggers WHERE id = $1", id).
		Scan(&t.ID, &t.Name, &t.LastTriggered)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTrigger inserts a new trigger
func (d *DB) CreateTrigger(ctx context.Context, t *models.Trigger) error {
	_, err := d.pool.Exec(ctx, "INSERT INTO triggers (id, name, last_triggered) VALUES ($1, $2, $3)",
		t.ID, t.Name, t.LastTriggered)
	return err
}

// SaveTriggerTriggered updates a trigger's last-trigger timestamp
func (d *DB) SaveTriggerTriggered(ctx context.Context, id string, at time.Time) error {
	_, err := d.pool.Exec(ctx, "UPDATE triggers SET last_triggered = $1 WHERE id = $2", at, id)
	return err
}

// DeleteTrigger removes a trigger, its tree and its actions
func (d *DB) DeleteTrigger(ctx context.Context, id string) error {
	if _, err := d.pool.Exec(ctx,
		"DELETE FROM condition_items WHERE group_id IN (SELECT id FROM condition_groups WHERE trigger_id = $1)", id); err != nil {
		return err
	}
	if _, err := d.pool.Exec(ctx, "DELETE FROM condition_groups WHERE trigger_id = $1", id); err != nil {
		return err
	}
	if _, err := d.pool.Exec(ctx, "DELETE FROM actions WHERE owner_type = 'trigger' AND owner_id = $1", id); err != nil {
		return err
	}
	_, err := d.pool.Exec(ctx, "DELETE FROM triggers WHERE id = $1", id)
	return err
}

// Groups fetches all condition groups
func (d *DB) Groups(ctx context.Context) ([]models.ConditionGroup, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT id, trigger_id, COALESCE(parent_id, ''), operator, sort FROM condition_groups ORDER BY sort")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.ConditionGroup
	for rows.Next() {
		var g models.ConditionGroup
		if err := rows.Scan(&g.ID, &g.TriggerID, &g.ParentID, &g.Operator, &g.Sort); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GroupsByParent fetches the direct child groups of a group
func (d *DB) GroupsByParent(ctx context.Context, parentID string) ([]models.ConditionGroup, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT id, trigger_id, COALESCE(parent_id, ''), operator, sort FROM condition_groups WHERE parent_id = $1 ORDER BY sort", parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []models.ConditionGroup
	for rows.Next() {
		var g models.ConditionGroup
		if err := rows.Scan(&g.ID, &g.TriggerID, &g.ParentID, &g.Operator, &g.Sort); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CreateGroup inserts a condition group
func (d *DB) CreateGroup(ctx context.Context, g *models.ConditionGroup) error {
	parent := any(g.ParentID)
	if g.ParentID == "" {
		parent = nil
	}
	_, err := d.pool.Exec(ctx,
		"INSERT INTO condition_groups (id, trigger_id, parent_id, operator, sort) VALUES ($1, $2, $3, $4, $5)",
		g.ID, g.TriggerID, parent, g.Operator, g.Sort)
	return err
}

// SaveGroupOperator updates a group's operator
func (d *DB) SaveGroupOperator(ctx context.Context, id, operator string) error {
	_, err := d.pool.Exec(ctx, "UPDATE condition_groups SET operator = $1 WHERE id = $2", operator, id)
	return err
}

// DeleteGroup removes a single group row
func (d *DB) DeleteGroup(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, "DELETE FROM condition_groups WHERE id = $1", id)
	return err
}

// Items fetches all condition items
func (d *DB) Items(ctx context.Context) ([]models.ConditionItem, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT id, group_id, feature_id, comparator, value, sort FROM condition_items ORDER BY sort")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.ConditionItem
	for rows.Next() {
		var it models.ConditionItem
		if err := rows.Scan(&it.ID, &it.GroupID, &it.FeatureID, &it.Comparator, &it.Value, &it.Sort); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ItemsByGroup fetches the items of one group
func (d *DB) ItemsByGroup(ctx context.Context, groupID string) ([]models.ConditionItem, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT id, group_id, feature_id, comparator, value, sort FROM condition_items WHERE group_id = $1 ORDER BY sort", groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.ConditionItem
	for rows.Next() {
		var it models.ConditionItem
		if err := rows.Scan(&it.ID, &it.GroupID, &it.FeatureID, &it.Comparator, &it.Value, &it.Sort); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CreateItem inserts a condition item
func (d *DB) CreateItem(ctx context.Context, it *models.ConditionItem) error {
	_, err := d.pool.Exec(ctx,
		"INSERT INTO condition_items (id, group_id, feature_id, comparator, value, sort) VALUES ($1, $2, $3, $4, $5, $6)",
		it.ID, it.GroupID, it.FeatureID, it.Comparator, it.Value, it.Sort)
	return err
}

// DeleteItem removes a condition item
func (d *DB) DeleteItem(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, "DELETE FROM condition_items WHERE id = $1", id)
	return err
}

// ActionsByOwner fetches the ordered action list of a scene, schedule or trigger
func (d *DB) ActionsByOwner(ctx context.Context, ownerType models.ActionOwner, ownerID string) ([]models.Action, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT id, owner_type, owner_id, sort, verb, COALESCE(feature_id, ''), COALESCE(scene_id, ''), value FROM actions WHERE owner_type = $1 AND owner_id = $2 ORDER BY sort",
		ownerType, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []models.Action
	for rows.Next() {
		var a models.Action
		if err := rows.Scan(&a.ID, &a.OwnerType, &a.OwnerID, &a.Sort, &a.Verb, &a.FeatureID, &a.SceneID, &a.Value); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CreateAction inserts an action
func (d *DB) CreateAction(ctx context.Context, a *models.Action) error {
	_, err := d.pool.Exec(ctx,
		"INSERT INTO actions (id, owner_type, owner_id, sort, verb, feature_id, scene_id, value) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		a.ID, a.OwnerType, a.OwnerID, a.Sort, a.Verb, a.FeatureID, a.SceneID, a.Value)
	return err
}

// DeleteAction removes an action
func (d *DB) DeleteAction(ctx context.Context, id string) error {
	_, err := d.pool.Exec(ctx, "DELETE FROM actions WHERE id = $1", id)
	return err
}
