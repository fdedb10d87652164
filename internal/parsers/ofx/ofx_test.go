package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rumor-ml/commons.systems/bankparse/internal/parser"
)

func TestName(t *testing.T) {
	p := NewParser()
	if got := p.Name(); got != "ofx" {
		t.Errorf("Name() = %q, want %q", got, "ofx")
	}
}

func TestCanParse(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		header   string
		expected bool
	}{
		{"SGML header marker", "jan.ofx", "OFXHEADER:100\nDATA:OFXSGML\n", true},
		{"XML processing instruction", "jan.ofx", "<?xml version=\"1.0\"?><?OFX OFXHEADER=\"200\"?>\n", true},
		{"bare OFX tag", "jan.ofx", "<OFX><SIGNONMSGSRSV1>", true},
		{"uppercase ofx extension", "JAN.OFX", "OFXHEADER:100\n", true},
		{"qfx extension", "jan.qfx", "OFXHEADER:100\nDATA:OFXSGML\n", true},
		{"uppercase qfx extension", "JAN.QFX", "<?OFX OFXHEADER=\"200\"?>\n", true},
		{"ofx extension without marker", "jan.ofx", "just some text", false},
		{"csv content", "jan.csv", "Date,Description,Amount\n", false},
		{"marker under wrong extension", "jan.pdf", "OFXHEADER:100\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			got := p.CanParse(tt.path, []byte(tt.header))
			if got != tt.expected {
				t.Errorf("CanParse() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// sgmlEnvelope wraps a response message set in a minimal OFX 1.x document.
func sgmlEnvelope(body string) string {
	return `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20260201120000
<LANGUAGE>ENG
<FI>
<ORG>UOB
<FID>7375
</FI>
</SONRS>
</SIGNONMSGSRSV1>
` + body + `
</OFX>`
}

const bankBody = `<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>SGD
<BANKACCTFROM>
<BANKID>7375
<ACCTID>1234567890
<ACCTTYPE>SAVINGS
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20260101000000
<DTEND>20260131235959
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20260105120000
<TRNAMT>-45.60
<FITID>TXN001
<NAME>NETS FAIRPRICE XPRESS
<MEMO>POS purchase
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20260112120000
<TRNAMT>5000.00
<FITID>TXN002
<NAME>GIRO SALARY ACME PTE LTD
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>6954.40
<DTASOF>20260131235959
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>`

func TestParse_BankStatement(t *testing.T) {
	p := NewParser()
	meta, err := parser.NewMetadata("/archive/uob/one-account/1234567890/jan.ofx", time.Now())
	if err != nil {
		t.Fatalf("failed to create metadata: %v", err)
	}

	stmt, err := p.Parse(context.Background(), strings.NewReader(sgmlEnvelope(bankBody)), meta)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if stmt.AccountNumber != "1234567890" {
		t.Errorf("AccountNumber = %q, want %q", stmt.AccountNumber, "1234567890")
	}
	if stmt.Currency != "SGD" {
		t.Errorf("Currency = %q, want SGD", stmt.Currency)
	}
	if stmt.PeriodStart != "2026-01-01" {
		t.Errorf("PeriodStart = %q, want 2026-01-01", stmt.PeriodStart)
	}
	if stmt.PeriodEnd != "2026-01-31" {
		t.Errorf("PeriodEnd = %q, want 2026-01-31", stmt.PeriodEnd)
	}
	if stmt.ClosingBalance != 6954.40 {
		t.Errorf("ClosingBalance = %v, want 6954.40", stmt.ClosingBalance)
	}

	if len(stmt.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(stmt.Transactions))
	}

	debit := stmt.Transactions[0]
	if debit.Date != "2026-01-05" {
		t.Errorf("Transactions[0].Date = %q, want 2026-01-05", debit.Date)
	}
	// NAME wins over MEMO when both are present.
	if debit.Description != "NETS FAIRPRICE XPRESS" {
		t.Errorf("Transactions[0].Description = %q", debit.Description)
	}
	if debit.Amount != -45.60 {
		t.Errorf("Transactions[0].Amount = %v, want -45.60", debit.Amount)
	}

	if credit := stmt.Transactions[1]; credit.Amount != 5000.00 {
		t.Errorf("Transactions[1].Amount = %v, want 5000.00", credit.Amount)
	}
}

func TestParse_CreditCardStatement(t *testing.T) {
	body := `<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>SGD
<CCACCTFROM>
<ACCTID>4111222233334444
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20260101000000
<DTEND>20260131235959
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20260120120000
<TRNAMT>-19.80
<FITID>CC001
<NAME>NETFLIX.COM SINGAPORE
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-319.80
<DTASOF>20260131235959
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>`

	p := NewParser()
	meta, err := parser.NewMetadata("/archive/uob/one-card/4444/jan.ofx", time.Now())
	if err != nil {
		t.Fatalf("failed to create metadata: %v", err)
	}

	stmt, err := p.Parse(context.Background(), strings.NewReader(sgmlEnvelope(body)), meta)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if stmt.AccountNumber != "4111222233334444" {
		t.Errorf("AccountNumber = %q, want %q", stmt.AccountNumber, "4111222233334444")
	}
	if len(stmt.Transactions) != 1 {
		t.Fatalf("got %d transactions, want 1", len(stmt.Transactions))
	}
	if stmt.Transactions[0].Description != "NETFLIX.COM SINGAPORE" {
		t.Errorf("Transaction description = %q", stmt.Transactions[0].Description)
	}
	if stmt.Transactions[0].Amount != -19.80 {
		t.Errorf("Transaction amount = %v, want -19.80", stmt.Transactions[0].Amount)
	}
}

func TestParse_InvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty content", ""},
		{"truncated markup", "<OFX><INVALID>"},
		{"envelope without statements", "OFXHEADER:100\n<OFX></OFX>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser()
			meta, err := parser.NewMetadata("/archive/uob/one-account/1234567890/bad.ofx", time.Now())
			if err != nil {
				t.Fatalf("failed to create metadata: %v", err)
			}

			if _, err := p.Parse(context.Background(), strings.NewReader(tt.content), meta); err == nil {
				t.Error("Parse() expected error, got nil")
			}
		})
	}
}

func TestParse_ContextCancellation(t *testing.T) {
	p := NewParser()
	meta, err := parser.NewMetadata("/archive/uob/one-account/1234567890/jan.ofx", time.Now())
	if err != nil {
		t.Fatalf("failed to create metadata: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Parse(ctx, strings.NewReader(sgmlEnvelope(bankBody)), meta); err != context.Canceled {
		t.Errorf("Parse() error = %v, want context.Canceled", err)
	}
}

func TestParse_MissingTransactionList(t *testing.T) {
	body := `<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>SGD
<BANKACCTFROM>
<BANKID>7375
<ACCTID>1234567890
<ACCTTYPE>SAVINGS
</BANKACCTFROM>
<LEDGERBAL>
<BALAMT>6954.40
<DTASOF>20260131235959
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>`

	p := NewParser()
	meta, err := parser.NewMetadata("/archive/uob/one-account/1234567890/jan.ofx", time.Now())
	if err != nil {
		t.Fatalf("failed to create metadata: %v", err)
	}

	_, err = p.Parse(context.Background(), strings.NewReader(sgmlEnvelope(body)), meta)
	if err == nil || !strings.Contains(err.Error(), "missing transaction list") {
		t.Errorf("Parse() error = %v, want missing transaction list", err)
	}
}
