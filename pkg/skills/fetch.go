package skills

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/moonmind/moonmind/pkg/errors"
)

const (
	// fetchTimeout bounds one bundle download end to end.
	fetchTimeout = 30 * time.Second

	maxRedirects = 10
)

// reservedNets covers address ranges that are routable-looking but never
// legitimate bundle hosts. Private, loopback, link-local, multicast, and
// unspecified addresses are checked through the net.IP predicates.
var reservedNets = mustParseCIDRs(
	"0.0.0.0/8",
	"100.64.0.0/10",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"240.0.0.0/4",
)

func mustParseCIDRs(blocks ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(blocks))
	for _, block := range blocks {
		_, n, err := net.ParseCIDR(block)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// fetcher downloads one resolved source into scratch space and returns the
// bundle root directory. lookupIP is swapped in tests.
type fetcher struct {
	client   *resty.Client
	lookupIP func(host string) ([]net.IP, error)
}

func newFetcher() *fetcher {
	f := &fetcher{lookupIP: net.LookupIP}
	f.client = resty.New().
		SetTimeout(fetchTimeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			// Every redirect hop is re-validated; a public host may not
			// bounce the download into an internal network.
			return f.validatePublicURL(req.URL)
		}))
	return f
}

// fetch resolves uri into a directory under scratch and returns it together
// with the scheme label used for metrics.
func (f *fetcher) fetch(ctx context.Context, uri, name, scratch string) (string, string, error) {
	switch {
	case uri == "builtin://"+BuiltinSkill:
		dir, err := synthesizeBuiltin(scratch)
		return dir, "builtin", err
	case strings.HasPrefix(uri, "builtin://"):
		return "", "builtin", errors.NewMaterialization(errors.CodeUnsupportedSourceScheme,
			fmt.Sprintf("no builtin skill %q", strings.TrimPrefix(uri, "builtin://")))
	case strings.HasPrefix(uri, "git+https://"):
		dir, err := f.fetchGit(ctx, strings.TrimPrefix(uri, "git+"), scratch)
		return dir, "git", err
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		dir, err := f.fetchHTTP(ctx, uri, scratch)
		return dir, "http", err
	case strings.HasPrefix(uri, "file://"):
		dir, err := f.fetchLocal(strings.TrimPrefix(uri, "file://"), scratch)
		return dir, "file", err
	case strings.Contains(uri, "://"):
		return "", "unknown", errors.NewMaterialization(errors.CodeUnsupportedSourceScheme,
			fmt.Sprintf("source scheme of %q is not supported", uri))
	default:
		dir, err := f.fetchLocal(uri, scratch)
		return dir, "file", err
	}
}

// fetchLocal uses a directory in place and extracts archives into scratch.
func (f *fetcher) fetchLocal(path, scratch string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.NewMaterialization(errors.CodeSourceNotFound,
			fmt.Sprintf("source path %q does not exist", path))
	}
	if info.IsDir() {
		return path, nil
	}
	dest := filepath.Join(scratch, "bundle")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}
	if err := extractArchive(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// fetchGit shallow-clones an https remote. The "--" terminator keeps a
// crafted URI from being parsed as a flag.
func (f *fetcher) fetchGit(ctx context.Context, remote, scratch string) (string, error) {
	dest := filepath.Join(scratch, "repo")
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--", remote, dest)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", errors.NewMaterialization(errors.CodeGitFetchFailed,
			fmt.Sprintf("git clone of %q failed: %s", remote, firstLine(out)))
	}
	return dest, nil
}

// fetchHTTP downloads an archive from a public host and extracts it.
func (f *fetcher) fetchHTTP(ctx context.Context, uri, scratch string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", errors.NewMaterialization(errors.CodeBundleFetchFailed,
			fmt.Sprintf("bundle URL %q is malformed", uri))
	}
	if err := f.validatePublicURL(parsed); err != nil {
		return "", err
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(uri)
	if err != nil {
		return "", errors.NewMaterialization(errors.CodeBundleFetchFailed,
			fmt.Sprintf("bundle download failed: %v", err))
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() != http.StatusOK {
		return "", errors.NewMaterialization(errors.CodeBundleFetchFailed,
			fmt.Sprintf("bundle download returned status %d", resp.StatusCode()))
	}

	archive := filepath.Join(scratch, "bundle.download")
	out, err := os.Create(archive)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return "", errors.NewMaterialization(errors.CodeBundleFetchFailed,
			fmt.Sprintf("bundle download interrupted: %v", err))
	}
	if err := out.Close(); err != nil {
		return "", err
	}

	dest := filepath.Join(scratch, "bundle")
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", err
	}
	if err := extractArchive(archive, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// validatePublicURL rejects URLs whose host resolves to any address that is
// private, loopback, link-local, multicast, reserved, or unspecified.
func (f *fetcher) validatePublicURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.NewMaterialization(errors.CodeUnsupportedSourceScheme,
			fmt.Sprintf("redirect to scheme %q is not allowed", u.Scheme))
	}
	host := u.Hostname()
	if host == "" {
		return errors.NewMaterialization(errors.CodeBundleFetchFailed,
			"bundle URL has no host")
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		resolved, err := f.lookupIP(host)
		if err != nil {
			return errors.NewMaterialization(errors.CodeBundleFetchFailed,
				fmt.Sprintf("cannot resolve bundle host %q: %v", host, err))
		}
		ips = resolved
	}

	for _, ip := range ips {
		if !publicAddress(ip) {
			return errors.NewMaterialization(errors.CodeBundleFetchFailed,
				fmt.Sprintf("bundle host %q resolves to non-public address %s", host, ip))
		}
	}
	return nil
}

func publicAddress(ip net.IP) bool {
	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsMulticast() || ip.IsUnspecified() {
		return false
	}
	for _, block := range reservedNets {
		if block.Contains(ip) {
			return false
		}
	}
	return true
}

// synthesizeBuiltin writes the minimal speckit skill tree.
func synthesizeBuiltin(scratch string) (string, error) {
	dir := filepath.Join(scratch, BuiltinSkill)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	manifest := "---\n" +
		"name: " + BuiltinSkill + "\n" +
		"description: Structured spec-first task execution\n" +
		"---\n\n" +
		"# speckit\n\n" +
		"Read the task instructions, produce a short written plan, execute it\n" +
		"step by step, and record the outcome before publishing.\n"
	if err := os.WriteFile(filepath.Join(dir, SkillManifestName), []byte(manifest), 0o644); err != nil {
		return "", err
	}
	return filepath.Dir(dir), nil
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "no output"
	}
	return s
}
