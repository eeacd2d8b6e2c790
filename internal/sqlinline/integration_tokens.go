package sqlinline

// Integration tokens hold credentials for outbound services, one row per
// provider. The generation backend key is the only provider today.

const QCreateIntegrationTokensTable = `--sql 8e9477e2-df59-48ea-b89d-e417183c890d
create table if not exists integration_tokens (
    id         uuid primary key default gen_random_uuid(),
    provider   text not null unique,
    token      text not null,
    properties jsonb not null default '{}'::jsonb,
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
`

// QSelectIntegrationToken args: $1 provider.
const QSelectIntegrationToken = `--sql 3f0b6a9e-52c4-4d8e-9a57-1c2e8d4b7f60
select t.token
from integration_tokens t
where t.provider = $1::text
  and length(trim(t.token)) > 0;
`

// QUpsertIntegrationToken args: $1 provider, $2 token, $3 properties jsonb.
const QUpsertIntegrationToken = `--sql c7d2e914-6b3a-4f05-8e1d-9b4a2f6c3e88
insert into integration_tokens as t (provider, token, properties)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb))
on conflict (provider) do update
set token      = excluded.token,
    properties = t.properties || excluded.properties,
    updated_at = now();
`
