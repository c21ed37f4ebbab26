package movement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeCSVUTF8(t *testing.T) {
	data := []byte("doc_kind,date,product,cabys,qty,unit_price,fraction_factor\n" +
		"PURCHASE,2025-03-15,ACETAMINOFÉN 500MG,9361,20,150,10\n" +
		"SALE,16-03-2025,ACETAMINOFÉN 500MG,,3,700,\n")

	lines, drops, err := DecodeCSV(data)
	require.NoError(t, err)
	require.Equal(t, 0, drops.Total())
	require.Len(t, lines, 2)
	require.Equal(t, "ACETAMINOFÉN 500MG", lines[0].Product)
	require.InDelta(t, 10.0, lines[0].FractionFactor, 1e-9)
	require.InDelta(t, 0.0, lines[1].FractionFactor, 1e-9)
}

func TestDecodeCSVWindows1252(t *testing.T) {
	// "JARABE NIÑOS" with 0xD1 for Ñ, as legacy exports encode it.
	data := []byte("doc_kind,date,product,cabys,qty,unit_price,fraction_factor\n" +
		"SALE,2025-03-15,JARABE NI\xd1OS,,1,2500,1\n")

	lines, drops, err := DecodeCSV(data)
	require.NoError(t, err)
	require.Equal(t, 0, drops.Total())
	require.Len(t, lines, 1)
	require.Equal(t, "JARABE NIÑOS", lines[0].Product)
}

func TestDecodeCSVDecimalComma(t *testing.T) {
	data := []byte("doc_kind,date,product,cabys,qty,unit_price,fraction_factor\n" +
		"SALE,2025-03-15,SUERO ORAL,,\"2,5\",\"1200,75\",1\n")

	lines, drops, err := DecodeCSV(data)
	require.NoError(t, err)
	require.Equal(t, 0, drops.Total())
	require.Len(t, lines, 1)
	require.InDelta(t, 2.5, lines[0].Qty, 1e-9)
	require.InDelta(t, 1200.75, lines[0].UnitPrice, 1e-9)
}

func TestDecodeCSVBadRowsDropped(t *testing.T) {
	data := []byte("doc_kind,date,product,cabys,qty,unit_price,fraction_factor\n" +
		"SALE,2025-03-15,GASA,,abc,10,1\n" +
		"SALE,2025-03-15,GASA,,2,10,1,extra\n" +
		"SALE,2025-03-15,GASA,,2,10,1\n")

	lines, drops, err := DecodeCSV(data)
	require.NoError(t, err)
	require.Equal(t, 2, drops.BadNumber)
	require.Len(t, lines, 1)
}

func TestDecodeCSVHeaderMismatch(t *testing.T) {
	data := []byte("kind,when,name\nSALE,2025-03-15,GASA\n")
	_, _, err := DecodeCSV(data)
	require.ErrorIs(t, err, ErrBadCSVHeader)
}

func TestDecodeCSVEmpty(t *testing.T) {
	_, _, err := DecodeCSV(nil)
	require.ErrorIs(t, err, ErrEmptyBatch)
}
