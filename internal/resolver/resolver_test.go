package resolver

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/nfse-tax-audit/internal/rules"
	"github.com/ginjaninja78/nfse-tax-audit/internal/tree"
	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

func defaultRule(t *testing.T, name string) *rules.FieldRule {
	t.Helper()
	rs, err := rules.Default()
	require.NoError(t, err)
	r := rs.Field(name)
	require.NotNil(t, r, name)
	return r
}

func TestResolveRoleExclusivity(t *testing.T) {
	fm := tree.FlatMap{
		"NFSe_infNFSe_DPS_infDPS_toma_CNPJ":  "22222222000122",
		"NFSe_infNFSe_emit_CNPJ":             "11111111000111",
		"NFSe_infNFSe_DPS_infDPS_prest_CNPJ": "11111111000111",
	}

	v, ok := Resolve(fm, defaultRule(t, types.FieldPrestadorCNPJ))
	require.True(t, ok)
	assert.Equal(t, "11111111000111", v)

	v, ok = Resolve(fm, defaultRule(t, types.FieldTomadorCNPJ))
	require.True(t, ok)
	assert.Equal(t, "22222222000122", v)
}

func TestResolveRejectsKeysNamingBothRoles(t *testing.T) {
	fm := tree.FlatMap{"Nota_TomadorPrestador_CNPJ": "99999999000199"}

	_, ok := Resolve(fm, defaultRule(t, types.FieldPrestadorCNPJ))
	assert.False(t, ok)
	_, ok = Resolve(fm, defaultRule(t, types.FieldTomadorCNPJ))
	assert.False(t, ok)
}

func TestResolveIgnoresAddressKeys(t *testing.T) {
	fm := tree.FlatMap{
		"Nfse_Tomador_Endereco_Numero": "100",
		"Nfse_Tomador_Endereco_Cep":    "01001000",
		"Nfse_Prestador_end_xLgr":      "Rua A",
	}
	_, ok := Resolve(fm, defaultRule(t, types.FieldNotaNumero))
	assert.False(t, ok)
	_, ok = Resolve(fm, defaultRule(t, types.FieldTomadorCNPJ))
	assert.False(t, ok)
}

func TestResolveISSIgnoresRetainedAmount(t *testing.T) {
	iss := defaultRule(t, types.FieldISSValor)

	_, ok := Resolve(tree.FlatMap{"Nfse_Valores_ValorISS_Retido": "30.00"}, iss)
	assert.False(t, ok)
	_, ok = Resolve(tree.FlatMap{"Nfse_Valores_vISS_ret": "30.00"}, iss)
	assert.False(t, ok)

	v, ok := Resolve(tree.FlatMap{
		"Nfse_Valores_ValorISS_Retido": "30.00",
		"Nfse_Valores_ValorISS":        "45.00",
	}, iss)
	require.True(t, ok)
	assert.Equal(t, "45.00", v)

	v, ok = Resolve(tree.FlatMap{"Nfse_Valores_ValorISS_Retido": "30.00"}, defaultRule(t, types.FieldRetISS))
	require.True(t, ok)
	assert.Equal(t, "30.00", v)
}

func TestResolveFragmentPriority(t *testing.T) {
	fm := tree.FlatMap{
		"NFSe_infNFSe_DPS_infDPS_dhEmi": "2024-01-01T10:00:00",
		"NFSe_infNFSe_dhProc":           "2024-01-02T08:00:00",
	}
	v, ok := Resolve(fm, defaultRule(t, types.FieldDataEmissao))
	require.True(t, ok)
	assert.Equal(t, "2024-01-02T08:00:00", v)
}

func TestResolveTieBreak(t *testing.T) {
	r := defaultRule(t, types.FieldDescricao)
	fm := tree.FlatMap{
		"Nfse_Servico_Discriminacao_1": "segunda",
		"Nfse_Servico_Discriminacao_0": "primeira",
	}
	v, ok := Resolve(fm, r)
	require.True(t, ok)
	assert.Equal(t, "primeira", v)

	// a key ending with the fragment beats a deeper or interior match
	fm = tree.FlatMap{
		"Nfse_Discriminacao_Item":          "interior",
		"Nfse_Servico_Itens_Discriminacao": "final",
	}
	m, ok := NewIndex(fm).Lookup(r)
	require.True(t, ok)
	assert.Equal(t, "final", m.Value)
	assert.Equal(t, "_discriminacao_", m.Fragment)
	assert.Equal(t, "Nfse_Servico_Itens_Discriminacao", m.Key)
}

func TestResolveSkipsBlankValues(t *testing.T) {
	fm := tree.FlatMap{
		"NFe_ChaveNFe_NumeroNFe": "   ",
		"Nfse_InfNfse_Numero":    " 42 ",
	}
	v, ok := Resolve(fm, defaultRule(t, types.FieldNotaNumero))
	require.True(t, ok)
	assert.Equal(t, "42", v)
}

func TestResolveIsOrderIndependent(t *testing.T) {
	r := defaultRule(t, types.FieldPrestadorRazao)
	keys := []string{
		"Nfse_PrestadorServico_RazaoSocial",
		"Nfse_emit_xNome",
		"Nfse_DPS_prest_xNome",
		"Nfse_Tomador_RazaoSocial",
	}
	values := map[string]string{
		keys[0]: "ACME ABRASF",
		keys[1]: "ACME Emitente",
		keys[2]: "ACME DPS",
		keys[3]: "Cliente",
	}

	want, ok := Resolve(tree.FlatMap(values), r)
	require.True(t, ok)
	assert.Equal(t, "ACME Emitente", want)

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		rnd.Shuffle(len(keys), func(a, b int) { keys[a], keys[b] = keys[b], keys[a] })
		fm := tree.FlatMap{}
		for _, k := range keys {
			fm[k] = values[k]
		}
		got, ok := Resolve(fm, r)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestResolveAccentInsensitive(t *testing.T) {
	fm := tree.FlatMap{"Nota_Prestador_RazãoSocial": "Ação Ltda"}
	v, ok := Resolve(fm, defaultRule(t, types.FieldPrestadorRazao))
	require.True(t, ok)
	assert.Equal(t, "Ação Ltda", v)
}

func TestCandidates(t *testing.T) {
	fm := tree.FlatMap{
		"NFSe_infNFSe_emit_CNPJ":             "111",
		"NFSe_infNFSe_DPS_infDPS_prest_CNPJ": "111",
		"NFSe_infNFSe_DPS_infDPS_prest_CPF":  "333",
		"NFSe_infNFSe_DPS_infDPS_toma_CNPJ":  "222",
	}
	ix := NewIndex(fm)
	assert.Equal(t, 4, ix.Len())

	got := ix.Candidates(defaultRule(t, types.FieldPrestadorCNPJ))
	require.Len(t, got, 3)
	assert.Equal(t, "NFSe_infNFSe_emit_CNPJ", got[0].Key)
	assert.Equal(t, "NFSe_infNFSe_DPS_infDPS_prest_CNPJ", got[1].Key)
	assert.Equal(t, "_cpf_", got[2].Fragment)
}

func TestResolveEmptyDocument(t *testing.T) {
	_, ok := Resolve(tree.FlatMap{}, defaultRule(t, types.FieldVlrBruto))
	assert.False(t, ok)
	_, ok = Resolve(nil, defaultRule(t, types.FieldVlrBruto))
	assert.False(t, ok)
}
