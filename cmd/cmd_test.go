package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cmdNotaXML = `<CompNfse><Nfse><InfNfse>
  <Numero>303</Numero>
  <PrestadorServico><IdentificacaoPrestador><CpfCnpj><Cnpj>55555555000155</Cnpj></CpfCnpj></IdentificacaoPrestador></PrestadorServico>
  <Servico><Valores><ValorServicos>100.00</ValorServicos></Valores></Servico>
  <ValoresNfse><ValorLiquidoNfse>100.00</ValorLiquidoNfse></ValoresNfse>
</InfNfse></Nfse></CompNfse>`

type workspace struct {
	input  string
	output string
	config string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	root := t.TempDir()
	ws := workspace{
		input:  filepath.Join(root, "entrada"),
		output: filepath.Join(root, "saida"),
		config: filepath.Join(root, "config.yaml"),
	}
	require.NoError(t, os.MkdirAll(ws.input, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.input, "nota1.xml"), []byte(cmdNotaXML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws.input, "quebrada.xml"), []byte("<a>"), 0o644))

	cfg := "input_dir: " + ws.input + "\noutput_dir: " + ws.output + "\nlog_level: error\n"
	require.NoError(t, os.WriteFile(ws.config, []byte(cfg), 0o644))
	return ws
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	outputPath, outputFormat, rulesPath, runLabel, templatePath = "", "", "", "", ""
	dryRun, verbose = false, false

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestProcessWritesTableAndSummary(t *testing.T) {
	ws := newWorkspace(t)

	out, _, err := run(t, "process", "--config", ws.config, "--label", "Março 2024")
	require.NoError(t, err)
	assert.Contains(t, out, "1 processed / 1 skipped")

	entries, err := os.ReadDir(ws.output)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Len(t, names, 2)
	assert.True(t, strings.HasPrefix(names[0], "auditoria_"), names[0])
	assert.True(t, strings.HasSuffix(names[0], ".xlsx"), names[0])
	assert.True(t, strings.HasPrefix(names[1], "resumo_"), names[1])

	summary, err := os.ReadFile(filepath.Join(ws.output, names[1]))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "quebrada.xml")
}

func TestProcessExplicitOutputInfersFormat(t *testing.T) {
	ws := newWorkspace(t)
	target := filepath.Join(ws.output, "relatorio.csv")

	_, _, err := run(t, "process", filepath.Join(ws.input, "nota1.xml"), "--config", ws.config, "--output", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Arquivo;Nota_Numero;"))
	assert.Contains(t, lines[1], "nota1.xml;303;")
}

func TestProcessDryRunWritesNothing(t *testing.T) {
	ws := newWorkspace(t)

	out, _, err := run(t, "process", "--config", ws.config, "--dry-run", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "1 processed / 1 skipped")
	_, err = os.Stat(ws.output)
	assert.True(t, os.IsNotExist(err))
}

func TestProcessRejectsUnknownFormat(t *testing.T) {
	ws := newWorkspace(t)
	_, _, err := run(t, "process", "--config", ws.config, "--format", "pdf")
	assert.Error(t, err)
}

func TestRulesValidate(t *testing.T) {
	ws := newWorkspace(t)

	out, _, err := run(t, "rules", "validate", "--config", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	bad := filepath.Join(t.TempDir(), "regras.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
version: x
roles:
  prestador: [prestador]
  tomador: [tomador]
retention:
  flag: {fragments: [_issretido_], true_values: ["1"], false_values: ["2"]}
  type_code: {fragments: [_tpretissqn_], withheld: ["2"], not_withheld: ["1"]}
fields:
  - name: Vlr_Bruto
    kind: text
    fragments: [_vserv_]
  - name: Desconhecido
    fragments: [_x_]
`), 0o644))

	_, stderr, err := run(t, "rules", "validate", bad, "--config", ws.config)
	require.Error(t, err)
	assert.Contains(t, stderr, "Vlr_Bruto")
	assert.Contains(t, stderr, "Desconhecido")
	assert.Greater(t, strings.Count(stderr, "✗"), 2)
}

func TestRulesDump(t *testing.T) {
	ws := newWorkspace(t)

	out, _, err := run(t, "rules", "dump", "--config", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "Nota_Numero")
	assert.Contains(t, out, "address_blocklist")

	tpl := filepath.Join(t.TempDir(), "regras.xlsx")
	_, _, err = run(t, "rules", "dump", "--config", ws.config, "--template", tpl)
	require.NoError(t, err)

	out, _, err = run(t, "rules", "validate", tpl, "--config", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestVersion(t *testing.T) {
	ws := newWorkspace(t)
	out, _, err := run(t, "version", "--config", ws.config)
	require.NoError(t, err)
	assert.Contains(t, out, "NFS-e Tax Audit")
	assert.Contains(t, out, "Rules:")
}
