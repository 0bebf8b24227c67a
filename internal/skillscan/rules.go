package skillscan

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/secureclaw/secureclaw/internal/secrets"
)

// Rule categories.
const (
	KindDestructive = "destructive"
	KindShellExec   = "shell-exec"
	KindWriteEscape = "write-outside"
	KindNetwork     = "network"
	KindMalicious   = "malicious"
	KindSecret      = "secret"
	KindSymlink     = "symlink"
	KindManifest    = "manifest"
)

// lineRule is a single-line syntactic pattern.
type lineRule struct {
	kind    string
	message string
	pattern *regexp.Regexp

	// accept, when set, must approve the submatch for the rule to fire.
	accept func(m []string) bool
}

var destructiveRules = []lineRule{
	{
		kind:    KindDestructive,
		message: "recursive delete of the filesystem root or home directory",
		pattern: regexp.MustCompile(`\brm\s+((?:-{1,2}[A-Za-z-]+\s+)+)["']?(/\*|/|~/?|\$HOME/?|\$\{HOME\}/?)["']?(?:\s|$|[;&|])`),
		accept:  recursiveFlag,
	},
	{
		kind:    KindDestructive,
		message: "recursive delete of the filesystem root",
		pattern: regexp.MustCompile(`\b(?:shutil\.rmtree|rimraf(?:\.sync)?|fs\.rmSync|Remove-Item)\s*\(?\s*["']?(?:/|C:\\)["']?\s*[,)\s]`),
	},
	{
		kind:    KindDestructive,
		message: "raw write to a block device",
		pattern: regexp.MustCompile(`\b(?:dd\s+[^\n]*of=/dev/(?:sd|nvme|hd|disk)|mkfs(?:\.[a-z0-9]+)?\s+/dev/)`),
	},
}

var shellExecRules = []lineRule{
	{
		kind:    KindShellExec,
		message: "unrestricted shell execution (eval)",
		pattern: regexp.MustCompile(`(?:^|[;&|({\s])eval\s*[\("'$]`),
	},
	{
		kind:    KindShellExec,
		message: "remote script piped into a shell",
		pattern: regexp.MustCompile(`\b(?:curl|wget)\b[^|\n]*\|\s*(?:sudo\s+)?(?:ba|z|da|k)?sh\b`),
	},
	{
		kind:    KindShellExec,
		message: "unrestricted shell execution (shell=True)",
		pattern: regexp.MustCompile(`\bshell\s*=\s*True\b`),
	},
	{
		kind:    KindShellExec,
		message: "unrestricted shell execution (os.system)",
		pattern: regexp.MustCompile(`\bos\.(?:system|popen)\s*\(`),
	},
	{
		kind:    KindShellExec,
		message: "unrestricted shell execution (child_process)",
		pattern: regexp.MustCompile(`\bchild_process\b|\bexecSync\s*\(`),
	},
	{
		kind:    KindShellExec,
		message: "unrestricted shell execution (Invoke-Expression)",
		pattern: regexp.MustCompile(`(?i)\bInvoke-Expression\b|\biex\s*\(`),
	},
}

// protectedPrefixes are locations a skill never has reason to write to.
const protectedPrefixes = `(?:/etc/|/usr/|/bin/|/sbin/|/lib|/boot/|/root/|/var/|/opt/|/home/|/Users/|~/|\$HOME/|\$\{HOME\}/|\.\./)`

var writeRules = []lineRule{
	{
		kind:    KindWriteEscape,
		message: "writes outside the skill directory",
		pattern: regexp.MustCompile(`>{1,2}\s*["']?` + protectedPrefixes),
	},
	{
		kind:    KindWriteEscape,
		message: "writes outside the skill directory",
		pattern: regexp.MustCompile(`\btee\s+(?:-a\s+)?["']?` + protectedPrefixes),
	},
	{
		kind:    KindWriteEscape,
		message: "writes outside the skill directory",
		pattern: regexp.MustCompile(`\b(?:cp|mv|install|ln)\s+(?:-[A-Za-z]+\s+)*\S+\s+["']?` + protectedPrefixes),
	},
	{
		kind:    KindWriteEscape,
		message: "writes outside the skill directory",
		pattern: regexp.MustCompile(`\bopen\s*\(\s*["']` + protectedPrefixes + `[^"']*["']\s*,\s*["'][wax]`),
	},
	{
		kind:    KindWriteEscape,
		message: "writes outside the skill directory",
		pattern: regexp.MustCompile(`\b(?:writeFile|writeFileSync|appendFile|appendFileSync)\s*\(\s*["'` + "`" + `](?:/|~|\.\./)`),
	},
}

var maliciousRules = []lineRule{
	{
		kind:    KindMalicious,
		message: "reverse shell signature",
		pattern: regexp.MustCompile(`/dev/tcp/|\bbash\s+-i\s+>&|\b(?:nc|ncat|netcat)\b[^\n]*\s-[a-z]*e\s|\bpty\.spawn\s*\(`),
	},
	{
		kind:    KindMalicious,
		message: "cryptocurrency miner signature",
		pattern: regexp.MustCompile(`(?i)\bxmrig\b|stratum\+tcp://|\bcryptonight\b|\bminerd\b`),
	},
	{
		kind:    KindMalicious,
		message: "encoded payload execution",
		pattern: regexp.MustCompile(`base64\s+(?:-d|--decode|-D)[^|\n]*\|\s*(?:ba|z)?sh\b|\b(?:exec|eval)\s*\(\s*(?:base64\.b64decode|atob|Buffer\.from)\s*\(|FromBase64String`),
	},
	{
		kind:    KindMalicious,
		message: "reads a credential store",
		pattern: regexp.MustCompile(`\.ssh/id_[a-z0-9]+|\.aws/credentials|\.openclaw/credentials|auth-profiles\.json|security\s+find-generic-password|\.gnupg/|Login Data|\.kube/config`),
	},
}

// ruleSets are applied to every scanned line in this order.
var ruleSets = [][]lineRule{destructiveRules, shellExecRules, writeRules, maliciousRules}

var urlPattern = regexp.MustCompile(`(?i)\b(?:https?|wss?|ftp)://([^/\s"'<>)\]]+)`)

// lineHit is a rule hit on a line, before file and line are attached.
type lineHit struct {
	kind    string
	message string
}

// matchLine applies every rule to one line.
func matchLine(line string, allowed []string) []lineHit {
	var hits []lineHit
	for _, set := range ruleSets {
		for _, r := range set {
			m := r.pattern.FindStringSubmatch(line)
			if m == nil || (r.accept != nil && !r.accept(m)) {
				continue
			}
			hits = append(hits, lineHit{kind: r.kind, message: r.message})
		}
	}

	for _, m := range urlPattern.FindAllStringSubmatch(line, -1) {
		host := hostOnly(m[1])
		if host == "" || hostAllowed(host, allowed) {
			continue
		}
		if net.ParseIP(host) != nil {
			hits = append(hits, lineHit{kind: KindNetwork, message: fmt.Sprintf("outbound call to raw IP address %s", host)})
			continue
		}
		hits = append(hits, lineHit{kind: KindNetwork, message: fmt.Sprintf("outbound call to non-allow-listed host %s", host)})
	}

	for _, sm := range secrets.ScanLine(line) {
		hits = append(hits, lineHit{kind: KindSecret, message: fmt.Sprintf("hardcoded %s (%s)", sm.Rule.Description, sm.Redacted)})
	}
	return hits
}

// recursiveFlag reports whether an rm flag list requests recursion.
func recursiveFlag(m []string) bool {
	for _, flag := range strings.Fields(m[1]) {
		if strings.HasPrefix(flag, "--") {
			if flag == "--recursive" {
				return true
			}
			continue
		}
		if strings.ContainsAny(flag, "rR") {
			return true
		}
	}
	return false
}

// hostOnly strips userinfo and port from a URL authority.
func hostOnly(authority string) string {
	if i := strings.LastIndex(authority, "@"); i >= 0 {
		authority = authority[i+1:]
	}
	if strings.HasPrefix(authority, "[") {
		if end := strings.Index(authority, "]"); end > 0 {
			return strings.ToLower(authority[1:end])
		}
	}
	if host, _, err := net.SplitHostPort(authority); err == nil {
		authority = host
	}
	return strings.ToLower(strings.TrimSuffix(authority, "."))
}

// hostAllowed reports whether host equals or is a subdomain of an allowed host.
func hostAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}
