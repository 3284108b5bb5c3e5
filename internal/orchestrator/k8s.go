package orchestrator

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/vidyabase/vidya-backend/internal/logger"
	"github.com/vidyabase/vidya-backend/internal/observability"
	"github.com/vidyabase/vidya-backend/internal/repos"
	"github.com/vidyabase/vidya-backend/internal/services"
	"github.com/vidyabase/vidya-backend/internal/types"
)

type K8sConfig struct {
	PollInterval  time.Duration
	HeartbeatFile string
	Host          string
	Namespace     string
	Image         string
}

// K8sController is the k8s-mode orchestrator: it creates a cluster Job per
// STARTING lifecycle row and flips it straight to RUNNING; the cluster owns
// the Job's lifetime from there, so there is no local exit-watching. Leader
// election keeps replicas from reconciling the same rows.
type K8sController struct {
	cfg       K8sConfig
	log       *logger.Logger
	lifecycle repos.WorkerLifecycleRepo
	client    kubernetes.Interface
	elector   LeaderElector
	audit     *services.AuditService
	metrics   *observability.Metrics
	started   time.Time
}

func NewK8sClient() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		loading := clientcmd.NewDefaultClientConfigLoadingRules()
		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loading, &clientcmd.ConfigOverrides{}).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("load kubernetes config: %w", err)
		}
	}
	return kubernetes.NewForConfig(cfg)
}

func NewK8sController(cfg K8sConfig, baseLog *logger.Logger, lifecycle repos.WorkerLifecycleRepo, client kubernetes.Interface, elector LeaderElector, audit *services.AuditService, metrics *observability.Metrics) *K8sController {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	return &K8sController{
		cfg:       cfg,
		log:       baseLog.With("component", "WorkerOrchestratorK8s"),
		lifecycle: lifecycle,
		client:    client,
		elector:   elector,
		audit:     audit,
		metrics:   metrics,
	}
}

func (c *K8sController) Run(ctx context.Context) error {
	c.started = time.Now()
	c.log.Info("Orchestrator starting in k8s mode", "namespace", c.cfg.Namespace, "image", c.cfg.Image)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	defer func() {
		_ = c.elector.Release(context.WithoutCancel(ctx))
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.writeHeartbeatFile()
			leader, err := c.elector.TryAcquire(ctx)
			if err != nil {
				c.log.Warn("Leader election attempt failed", "error", err)
				continue
			}
			if !leader {
				continue
			}
			c.tick(ctx)
		}
	}
}

func (c *K8sController) tick(ctx context.Context) {
	rows, err := c.lifecycle.FindByStatus(ctx, nil, types.LifecycleStarting)
	if err != nil {
		c.log.Warn("Poll for STARTING rows failed", "error", err)
		return
	}
	for _, row := range rows {
		if err := c.createJob(ctx, row); err != nil {
			c.log.Error("Cluster Job creation failed", "lifecycle_id", row.ID, "error", err)
			c.audit.Worker(ctx, row.ID, "spawn_failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		now := time.Now()
		if err := c.lifecycle.UpdateFields(ctx, nil, row.ID, map[string]interface{}{
			"status":            types.LifecycleRunning,
			"host":              "k8s/" + c.cfg.Namespace,
			"started_at":        now,
			"last_heartbeat_at": now,
		}); err != nil {
			c.log.Warn("Lifecycle update after Job creation failed", "lifecycle_id", row.ID, "error", err)
		}
		c.metrics.WorkerSpawned()
		c.audit.Worker(ctx, row.ID, "spawned", map[string]interface{}{"namespace": c.cfg.Namespace})
		c.log.Info("Cluster Job created", "lifecycle_id", row.ID, "type", row.Type)
	}
}

func (c *K8sController) createJob(ctx context.Context, row *types.WorkerLifecycle) error {
	name := fmt.Sprintf("vidya-worker-%s", row.ID.String()[:8])
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: c.cfg.Namespace,
			Labels: map[string]string{
				"app":          "vidya-worker",
				"worker-type":  row.Type,
				"lifecycle-id": row.ID.String(),
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            int32Ptr(0),
			TTLSecondsAfterFinished: int32Ptr(3600),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{"app": "vidya-worker", "worker-type": row.Type},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:  "worker",
							Image: c.cfg.Image,
							Args:  []string{"--type", row.Type, "--lifecycle-id", row.ID.String()},
						},
					},
				},
			},
		},
	}
	_, err := c.client.BatchV1().Jobs(c.cfg.Namespace).Create(ctx, job, metav1.CreateOptions{})
	return err
}

func int32Ptr(v int32) *int32 { return &v }

func (c *K8sController) writeHeartbeatFile() {
	if c.cfg.HeartbeatFile == "" {
		return
	}
	o := &Orchestrator{
		cfg:     Config{HeartbeatFile: c.cfg.HeartbeatFile, Host: c.cfg.Host},
		log:     c.log,
		started: c.started,
	}
	o.writeHeartbeat("k8s")
}
