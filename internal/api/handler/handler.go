package handler

import "homework-planner/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth        *AuthHandler
	Student     *StudentHandler
	Planner     *PlannerHandler
	Preference  *PreferenceHandler
	Export      *ExportHandler
	Events      *EventsHandler
	Maintenance *MaintenanceHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Auth:        NewAuthHandler(svc.Auth),
		Student:     NewStudentHandler(svc.Student, svc.Pipeline),
		Planner:     NewPlannerHandler(svc.Student, svc.Availability, svc.Worksheet, svc.Sync, svc.Pipeline),
		Preference:  NewPreferenceHandler(svc.Student, svc.Preference),
		Export:      NewExportHandler(svc.Student, svc.Export),
		Events:      NewEventsHandler(svc.Student, svc.Events),
		Maintenance: NewMaintenanceHandler(svc.Reaper),
	}
}
