package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/gosuda/tenantd/internal/backup"
	"github.com/gosuda/tenantd/internal/domain"
)

type CreateBackupInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
	Body     struct {
		Type            string `json:"type" enum:"full,database,files,incremental" doc:"Backup type"`
		IncludeDatabase bool   `json:"include_database" doc:"Back up the tenant database"`
		IncludeFiles    bool   `json:"include_files" doc:"Back up uploaded files"`
		Encrypt         bool   `json:"encrypt" doc:"Encrypt artifacts with a per-backup data key"`
		RetentionDays   int    `json:"retention_days,omitempty" minimum:"0" maximum:"3650" doc:"Retention in days; 0 uses the platform default"`
	}
}

type CreateBackupOutput struct {
	Status int
	Body   *Backup
}

type ListBackupsInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
	Status   string    `query:"status" enum:",pending,in_progress,completed,failed,expired" doc:"Filter by status"`
	Type     string    `query:"type" enum:",full,database,files,incremental" doc:"Filter by type"`
	From     time.Time `query:"from" doc:"Only backups created at or after this time"`
	To       time.Time `query:"to" doc:"Only backups created before this time"`
	Limit    int       `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset   int       `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListBackupsOutput struct {
	Body []*Backup
}

type BackupIDInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
	BackupID uuid.UUID `path:"backupID" doc:"Backup ID"`
}

type GetBackupOutput struct {
	Body *Backup
}

type DeleteBackupOutput struct {
	Status int
}

type RestoreBackupInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
	BackupID uuid.UUID `path:"backupID" doc:"Backup ID"`
	Body     struct {
		SkipPreBackup bool `json:"skip_pre_backup,omitempty" doc:"Skip the safety backup taken before restoring"`
		RestoreFiles  bool `json:"restore_files,omitempty" doc:"Also restore uploaded files"`
	}
}

type RestoreBackupOutput struct {
	Body *Restore
}

type SetBackupScheduleInput struct {
	TenantID uuid.UUID `path:"tenantID" doc:"Tenant ID"`
	Body     struct {
		Frequency       string `json:"frequency" enum:"daily,weekly,monthly" doc:"Run frequency"`
		Hour            int    `json:"hour" minimum:"0" maximum:"23" doc:"UTC hour of day"`
		Minute          int    `json:"minute,omitempty" minimum:"0" maximum:"59" doc:"Minute of the hour"`
		Type            string `json:"type" enum:"full,database" doc:"Backup type for scheduled runs"`
		RetentionDays   int    `json:"retention_days,omitempty" minimum:"0" maximum:"3650" doc:"Retention in days; 0 uses the platform default"`
		NotifyOnFailure bool   `json:"notify_on_failure,omitempty" doc:"Notify when a scheduled backup fails"`
	}
}

type BackupScheduleOutput struct {
	Body *BackupSchedule
}

func RegisterBackupRoutes(api huma.API, backups BackupService) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-backup",
		Method:        http.MethodPost,
		Path:          "/tenants/{tenantID}/backups",
		Summary:       "Create a backup and enqueue its execution",
		Tags:          []string{"Backups"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *CreateBackupInput) (*CreateBackupOutput, error) {
		initiatedBy := callerID(ctx)

		rec, err := backups.Create(ctx, input.TenantID, backup.Request{
			Type:            domain.BackupType(input.Body.Type),
			IncludeDatabase: input.Body.IncludeDatabase,
			IncludeFiles:    input.Body.IncludeFiles,
			Encrypt:         input.Body.Encrypt,
			RetentionDays:   input.Body.RetentionDays,
			InitiatedBy:     initiatedBy,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return &CreateBackupOutput{Status: http.StatusAccepted, Body: toBackup(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-backups",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenantID}/backups",
		Summary:     "List backups for a tenant",
		Tags:        []string{"Backups"},
	}, func(ctx context.Context, input *ListBackupsInput) (*ListBackupsOutput, error) {
		from, to := parseTimes(input.From, input.To)

		recs, err := backups.List(ctx, input.TenantID, domain.BackupFilter{
			Status: domain.BackupStatus(input.Status),
			Type:   domain.BackupType(input.Type),
			From:   from,
			To:     to,
			Limit:  input.Limit,
			Offset: input.Offset,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return &ListBackupsOutput{Body: toBackups(recs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-backup",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenantID}/backups/{backupID}",
		Summary:     "Get one backup",
		Tags:        []string{"Backups"},
	}, func(ctx context.Context, input *BackupIDInput) (*GetBackupOutput, error) {
		rec, err := backups.Get(ctx, input.TenantID, input.BackupID)
		if err != nil {
			return nil, mapError(err)
		}
		return &GetBackupOutput{Body: toBackup(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-backup",
		Method:        http.MethodDelete,
		Path:          "/tenants/{tenantID}/backups/{backupID}",
		Summary:       "Delete a backup and its artifacts",
		Tags:          []string{"Backups"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *BackupIDInput) (*DeleteBackupOutput, error) {
		if err := backups.Delete(ctx, input.TenantID, input.BackupID); err != nil {
			return nil, mapError(err)
		}
		return &DeleteBackupOutput{Status: http.StatusNoContent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-backup",
		Method:      http.MethodPost,
		Path:        "/tenants/{tenantID}/backups/{backupID}/restore",
		Summary:     "Restore tenant data from a completed backup",
		Tags:        []string{"Backups"},
	}, func(ctx context.Context, input *RestoreBackupInput) (*RestoreBackupOutput, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		restore, err := backups.Restore(ctx, input.TenantID, input.BackupID, backup.RestoreOptions{
			SkipPreBackup: input.Body.SkipPreBackup,
			RestoreFiles:  input.Body.RestoreFiles,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return &RestoreBackupOutput{Body: toRestore(restore)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-backup-schedule",
		Method:      http.MethodPut,
		Path:        "/tenants/{tenantID}/backup-schedule",
		Summary:     "Set or replace the tenant's recurring backup schedule",
		Tags:        []string{"Backups"},
	}, func(ctx context.Context, input *SetBackupScheduleInput) (*BackupScheduleOutput, error) {
		sched, err := backups.Schedule(ctx, input.TenantID, backup.ScheduleRequest{
			Frequency:       domain.BackupFrequency(input.Body.Frequency),
			Hour:            input.Body.Hour,
			Minute:          input.Body.Minute,
			Type:            domain.BackupType(input.Body.Type),
			RetentionDays:   input.Body.RetentionDays,
			NotifyOnFailure: input.Body.NotifyOnFailure,
		})
		if err != nil {
			return nil, mapError(err)
		}
		return &BackupScheduleOutput{Body: toBackupSchedule(sched)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-backup-schedule",
		Method:      http.MethodGet,
		Path:        "/tenants/{tenantID}/backup-schedule",
		Summary:     "Get the tenant's recurring backup schedule",
		Tags:        []string{"Backups"},
	}, func(ctx context.Context, input *TenantIDInput) (*BackupScheduleOutput, error) {
		sched, err := backups.GetSchedule(ctx, input.TenantID)
		if err != nil {
			return nil, mapError(err)
		}
		return &BackupScheduleOutput{Body: toBackupSchedule(sched)}, nil
	})
}
