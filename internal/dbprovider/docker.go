package dbprovider

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/gosuda/tenantd/internal/domain"
)

const dataMountDir = "/var/lib/postgresql/data"

// DockerProvider runs one PostgreSQL container per tenant database, for
// self-hosted installs where tenants get hard process isolation instead of
// sharing a database server. The container and its volume are both named
// after the tenant database.
type DockerProvider struct {
	client   *client.Client
	image    string
	password string
}

func NewDockerProvider(host, image, password string) (*DockerProvider, error) {
	opts := []client.Opt{
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	}

	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("dbprovider.NewDockerProvider: %w", err)
	}

	return &DockerProvider{client: c, image: image, password: password}, nil
}

func (d *DockerProvider) Close() error {
	if err := d.client.Close(); err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Close: %w", err)
	}
	return nil
}

func containerName(name string) string { return "tenantd-db-" + name }

func (d *DockerProvider) Create(ctx context.Context, name string) error {
	if !ValidDatabaseName(name) {
		return fmt.Errorf("dbprovider.DockerProvider.Create: %q: %w", name, ErrInvalidDatabaseName)
	}

	exists, err := d.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Create: %w", err)
	}
	if exists {
		return nil
	}

	_, err = d.client.VolumeCreate(ctx, volume.CreateOptions{Name: containerName(name)})
	if err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Create: volume: %w", err)
	}

	cfg := &container.Config{
		Image: d.image,
		Env: []string{
			"POSTGRES_DB=" + name,
			"POSTGRES_USER=postgres",
			"POSTGRES_PASSWORD=" + d.password,
		},
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeVolume,
				Source: containerName(name),
				Target: dataMountDir,
			},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	resp, err := d.client.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, containerName(name))
	if err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Create: container: %w", err)
	}

	err = d.client.ContainerStart(ctx, resp.ID, container.StartOptions{})
	if err != nil {
		_ = d.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("dbprovider.DockerProvider.Create: start: %w", err)
	}

	err = d.waitReady(ctx, name)
	if err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Create: %w", err)
	}

	return nil
}

func (d *DockerProvider) Exists(ctx context.Context, name string) (bool, error) {
	containers, err := d.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+containerName(name)+"$")),
	})
	if err != nil {
		return false, fmt.Errorf("dbprovider.DockerProvider.Exists: %w", err)
	}

	return len(containers) > 0, nil
}

func (d *DockerProvider) Drop(ctx context.Context, name string) error {
	exists, err := d.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Drop: %w", err)
	}
	if !exists {
		return nil
	}

	err = d.client.ContainerRemove(ctx, containerName(name), container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Drop: container: %w", err)
	}

	err = d.client.VolumeRemove(ctx, containerName(name), true)
	if err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Drop: volume: %w", err)
	}

	return nil
}

func (d *DockerProvider) Migrate(ctx context.Context, name string) error {
	exitCode, err := d.execInput(ctx, name,
		[]string{"psql", "-U", "postgres", "-d", name, "-v", "ON_ERROR_STOP=1"},
		strings.NewReader(tenantSchema), io.Discard)
	if err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Migrate: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("dbprovider.DockerProvider.Migrate: psql exited with code %d", exitCode)
	}
	return nil
}

func (d *DockerProvider) Seed(ctx context.Context, name string, admin *domain.AdminBootstrap) error {
	if admin == nil {
		return nil
	}

	seedSQL := fmt.Sprintf(
		`INSERT INTO users (id, name, email, password, role)
		 VALUES (gen_random_uuid(), %s, %s, %s, 'admin')
		 ON CONFLICT (email) DO NOTHING;`,
		pgQuote(admin.Name), pgQuote(admin.Email), pgQuote(admin.PasswordHash),
	)

	exitCode, err := d.execInput(ctx, name,
		[]string{"psql", "-U", "postgres", "-d", name, "-v", "ON_ERROR_STOP=1"},
		strings.NewReader(seedSQL), io.Discard)
	if err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Seed: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("dbprovider.DockerProvider.Seed: psql exited with code %d", exitCode)
	}
	return nil
}

func (d *DockerProvider) Dump(ctx context.Context, name string, w io.Writer) error {
	exitCode, err := d.execInput(ctx, name,
		[]string{"pg_dump", "-U", "postgres", "--format", "plain", "--clean", "--if-exists", name},
		nil, w)
	if err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Dump: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("dbprovider.DockerProvider.Dump: pg_dump exited with code %d", exitCode)
	}
	return nil
}

func (d *DockerProvider) Restore(ctx context.Context, name string, r io.Reader) error {
	exitCode, err := d.execInput(ctx, name,
		[]string{"psql", "-U", "postgres", "-d", name, "-v", "ON_ERROR_STOP=1"},
		r, io.Discard)
	if err != nil {
		return fmt.Errorf("dbprovider.DockerProvider.Restore: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("dbprovider.DockerProvider.Restore: psql exited with code %d", exitCode)
	}
	return nil
}

// waitReady polls pg_isready inside the container until the server accepts
// connections, with bounded retries.
func (d *DockerProvider) waitReady(ctx context.Context, name string) error {
	for attempt := range 30 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait ready: %w", ctx.Err())
		case <-time.After(time.Duration(500+attempt*100) * time.Millisecond):
		}

		exitCode, err := d.execInput(ctx, name,
			[]string{"pg_isready", "-U", "postgres", "-d", name}, nil, io.Discard)
		if err == nil && exitCode == 0 {
			return nil
		}
	}

	return fmt.Errorf("wait ready: database %q did not become ready", name)
}

// execInput runs a command inside the tenant's container, feeding stdin from
// in (may be nil) and copying stdout to out. Returns the command exit code.
func (d *DockerProvider) execInput(ctx context.Context, name string, cmd []string, in io.Reader, out io.Writer) (int, error) {
	execResp, err := d.client.ContainerExecCreate(ctx, containerName(name), container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  in != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, fmt.Errorf("exec create: %w", err)
	}

	attach, err := d.client.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return -1, fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	if in != nil {
		go func() {
			_, _ = io.Copy(attach.Conn, in)
			_ = attach.CloseWrite()
		}()
	}

	var stderr strings.Builder
	_, err = stdcopy.StdCopy(out, &stderr, attach.Reader)
	if err != nil {
		return -1, fmt.Errorf("exec copy: %w", err)
	}

	inspect, err := d.client.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return -1, fmt.Errorf("exec inspect: %w", err)
	}

	if inspect.ExitCode != 0 && stderr.Len() > 0 {
		return inspect.ExitCode, fmt.Errorf("%s: %s", cmd[0], strings.TrimSpace(stderr.String()))
	}

	return inspect.ExitCode, nil
}

// pgQuote escapes a value as a PostgreSQL string literal.
func pgQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
